package inbound

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type recordingHandler struct{ msgs []Message }

func (h *recordingHandler) Handle(_ context.Context, msg Message) (Result, error) {
	h.msgs = append(h.msgs, msg)
	return Result{Command: Interpret(msg.Body)}, nil
}

type mapTenants map[string]*tenants.Tenant

func (m mapTenants) Get(id string) (*tenants.Tenant, error) {
	for _, t := range m {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, apperr.NotFound("unknown tenant")
}

func (m mapTenants) ByPhoneNumber(number string) (*tenants.Tenant, error) {
	if t, ok := m[number]; ok {
		return t, nil
	}
	return nil, apperr.NotFound("no tenant owns this number")
}

func serveInbound(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/inbound/messages", h.HandleMessage)
	req := httptest.NewRequest(http.MethodPost, "/inbound/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessageResolvesTenantByNumber(t *testing.T) {
	msgs := &recordingHandler{}
	acme := &tenants.Tenant{ID: "acme"}
	h := NewHandler(msgs, mapTenants{"+441134960000": acme}, validator.New(), "GB")

	rec := serveInbound(t, h, `{"from":"07700 900123","to":"0113 496 0000","body":"stop","messageId":"m1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(msgs.msgs) != 1 || msgs.msgs[0].Tenant != acme {
		t.Fatalf("expected message routed to acme, got %+v", msgs.msgs)
	}
	if !strings.Contains(rec.Body.String(), `"command":"opt_out"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestHandleMessageRejectsUnknownNumber(t *testing.T) {
	msgs := &recordingHandler{}
	h := NewHandler(msgs, mapTenants{}, validator.New(), "GB")

	rec := serveInbound(t, h, `{"from":"+447700900123","to":"+441134960001","body":"1","messageId":"m1"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(msgs.msgs) != 0 {
		t.Fatal("message must not be handled without a tenant")
	}
}

func TestHandleMessageRequiresMessageID(t *testing.T) {
	h := NewHandler(&recordingHandler{}, mapTenants{}, validator.New(), "GB")

	rec := serveInbound(t, h, `{"from":"+447700900123","to":"+441134960000","body":"1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
