package reconcile

import (
	apphttp "loadline_backend/internal/http"
	"loadline_backend/platform/validator"
)

// Module is the reconciliation module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates the reconciliation module around an already wired
// sweeper service.
func NewModule(service *Service, val *validator.Validator, defaultHoursBack int) *Module {
	return &Module{
		handler: NewHandler(service, val, defaultHoursBack),
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reconcile"
}

// Service exposes the sweeper for the scheduler's periodic loop.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the on-demand sweep trigger on the ops group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Ops.POST("/reconcile", m.handler.HandleRun)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
