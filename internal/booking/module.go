package booking

import (
	apphttp "leadbooking_backend/internal/http"
	"leadbooking_backend/platform/validator"
)

// Module exposes direct booking and lookup for operators.
type Module struct {
	handler *Handler
}

func NewModule(svc Service, reader Reader, lookup TenantLookup, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(svc, reader, lookup, val)}
}

func (m *Module) Name() string {
	return "bookings"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/bookings")
	g.POST("", m.handler.HandleCommit)
	g.GET("/:id", m.handler.HandleGet)
}

var _ apphttp.Module = (*Module)(nil)
