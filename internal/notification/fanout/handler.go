package fanout

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/httpkit"
	"leadbooking_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const channelBuffer = 32

// History reads audited records.
type History interface {
	ListRecent(ctx context.Context, tenantID string, limit int) ([]Record, error)
}

// Handler serves the live event streams.
type Handler struct {
	hub      *Hub
	history  History
	upgrader websocket.Upgrader
	buffer   int
	log      *logger.Logger
}

func NewHandler(hub *Hub, cfg config.HTTPConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		hub:      hub,
		upgrader: newUpgrader(cfg.GetCORSAllowAll(), cfg.GetCORSOrigins()),
		buffer:   channelBuffer,
		log:      log,
	}
}

// SetHistory enables the history endpoint.
func (h *Handler) SetHistory(history History) {
	h.history = history
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.Events)
	rg.GET("/ws", h.WebSocket)
	if h.history != nil {
		rg.GET("/history", h.History)
	}
}

// History lists the tenant's most recent flushed events.
func (h *Handler) History(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.history.ListRecent(c.Request.Context(), tenantID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpkit.OK(c, gin.H{"items": records})
}

// tenant resolves the stream's tenant from the token claim, or from the
// tenantId query for operator tokens without one.
func (h *Handler) tenant(c *gin.Context) (string, bool) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return "", false
	}
	tenantID := id.TenantID()
	if tenantID == "" {
		tenantID = strings.TrimSpace(c.Query("tenantId"))
	}
	if tenantID == "" {
		httpkit.Error(c, http.StatusBadRequest, "tenantId is required", nil)
		return "", false
	}
	if !httpkit.AuthorizeTenant(c, tenantID) {
		return "", false
	}
	return tenantID, true
}
