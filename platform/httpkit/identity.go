// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Identity represents the authenticated operator's identity.
// Handlers read it instead of poking at gin context keys directly.
type Identity interface {
	// Subject returns the token subject (operator or service account).
	Subject() string
	// TenantID returns the tenant the token is scoped to.
	TenantID() string
	// HasRole checks if the caller has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if a valid token was presented.
	IsAuthenticated() bool
}

type identity struct {
	subject       string
	tenantID      string
	roles         []string
	authenticated bool
}

func (i *identity) Subject() string  { return i.subject }
func (i *identity) TenantID() string { return i.tenantID }

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if subject info is not present.
func GetIdentity(c *gin.Context) Identity {
	subject := c.GetString(ContextSubjectKey)
	if subject == "" {
		return &identity{authenticated: false}
	}

	var roleList []string
	if roles, ok := c.Get(ContextRolesKey); ok {
		roleList, _ = roles.([]string)
	}

	return &identity{
		subject:       subject,
		tenantID:      c.GetString(ContextTenantIDKey),
		roles:         roleList,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the caller is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}

// AuthorizeTenant reports whether the caller may act on tenantID.
// Tokens without a tenant claim are treated as platform operators.
func AuthorizeTenant(c *gin.Context, tenantID string) bool {
	id := MustGetIdentity(c)
	if id == nil {
		return false
	}
	if id.TenantID() != "" && id.TenantID() != tenantID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}
