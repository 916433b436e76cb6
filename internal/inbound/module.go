package inbound

import (
	apphttp "leadbooking_backend/internal/http"
	"leadbooking_backend/platform/validator"
)

// Module exposes the inbound SMS webhook.
type Module struct {
	handler *Handler
}

func NewModule(svc MessageHandler, lookup TenantLookup, val *validator.Validator, region string) *Module {
	return &Module{handler: NewHandler(svc, lookup, val, region)}
}

func (m *Module) Name() string {
	return "inbound"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/inbound/messages", m.handler.HandleMessage)
}

var _ apphttp.Module = (*Module)(nil)
