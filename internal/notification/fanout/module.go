package fanout

import (
	apphttp "leadbooking_backend/internal/http"
)

// Module mounts the stream endpoints behind authentication.
type Module struct {
	handler *Handler
}

func NewModule(handler *Handler) *Module {
	return &Module{handler: handler}
}

func (m *Module) Name() string { return "stream" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/stream"))
}

var _ apphttp.Module = (*Module)(nil)
