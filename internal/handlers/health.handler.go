package handlers

import (
	"github.com/fasthttp/router"
	xhttp "github.com/inmobium/crm-messaging/pkg/http"
)

type HealthService interface {
	Get() error
}

type HealthHandler struct {
	health HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(health HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	if h.health != nil {
		if err := h.health.Get(); err != nil {
			writeError(ctx, xhttp.StatusServiceUnavailable, err.Error())
			return
		}
	}
	ctx.Response.SetBodyString("success")
}
