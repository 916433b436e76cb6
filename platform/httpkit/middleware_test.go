package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadbooking_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type testAuthConfig struct {
	secret string
	apiKey string
}

func (c testAuthConfig) GetJWTAccessSecret() string   { return c.secret }
func (c testAuthConfig) GetWebhookAPIKey() string     { return c.apiKey }
func (c testAuthConfig) GetWebhookRatePerMinute() int { return 60 }

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter(cfg testAuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthRequired(cfg), func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"sub": id.Subject(), "tenant": id.TenantID()})
	})
	r.POST("/hook", APIKeyRequired(cfg), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthRequiredAcceptsAccessToken(t *testing.T) {
	cfg := testAuthConfig{secret: "s3cret"}
	token := signToken(t, cfg.secret, jwt.MapClaims{
		"sub":       "operator-1",
		"type":      "access",
		"tenant_id": "acme",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthRouter(cfg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRequiredRejectsRefreshToken(t *testing.T) {
	cfg := testAuthConfig{secret: "s3cret"}
	token := signToken(t, cfg.secret, jwt.MapClaims{"sub": "operator-1", "type": "refresh"})

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	rec := httptest.NewRecorder()
	newAuthRouter(cfg).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testAuthConfig{apiKey: "hook-key"}
	router := newAuthRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(HeaderWebhookKey, "hook-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with key, got %d", rec.Code)
	}
}

func TestHandleErrorMapsWrappedKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err    error
		status int
	}{
		{apperr.SlotConflict("taken"), http.StatusConflict},
		{apperr.Compliance("opted out"), http.StatusForbidden},
		{apperr.Transient("calendar", nil), http.StatusServiceUnavailable},
		{apperr.Validation("bad"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		HandleError(c, tt.err)
		if rec.Code != tt.status {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.status, rec.Code)
		}
	}
}
