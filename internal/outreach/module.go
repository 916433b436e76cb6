package outreach

import (
	apphttp "leadbooking_backend/internal/http"
	"leadbooking_backend/platform/validator"
)

// Module mounts manual outreach triggers and the voice provider callback.
type Module struct {
	handler *Handler
}

func NewModule(svc Service, lookup TenantLookup, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, lookup, val)}
}

func (m *Module) Name() string {
	return "outreach"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/outreach/trigger", m.handler.HandleTrigger)
	ctx.Webhooks.POST("/voice/outcomes", m.handler.HandleCallOutcome)
}

var _ apphttp.Module = (*Module)(nil)
