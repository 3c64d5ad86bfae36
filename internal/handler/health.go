package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cursala-gateway/internal/cache"
	"cursala-gateway/internal/client"
	"cursala-gateway/internal/config"
	"cursala-gateway/internal/faq"
)

// pingTimeout bounds the cache check in Status.
const pingTimeout = 2 * time.Second

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg       *config.Config
	version   Version
	backend   *client.BackendClient
	cache     cache.Cache
	refresher *faq.Refresher
}

// NewHealthHandler creates a HealthHandler. The cache and refresher may be nil.
func NewHealthHandler(cfg *config.Config, v Version, backend *client.BackendClient, c cache.Cache, r *faq.Refresher) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, backend: backend, cache: c, refresher: r}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version, backend targets, breaker state and the
// FAQ cache and refresher. An unreachable remote cache marks the gateway
// degraded; the proxy routes keep working without it.
func (h *HealthHandler) Status(c echo.Context) error {
	status := "ok"
	cacheStatus := h.cacheStatus(c.Request().Context())
	if cacheStatus == "unreachable" {
		status = "degraded"
	}

	refresher := "stopped"
	if h.refresher != nil && h.refresher.Running() {
		refresher = "running"
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":        status,
		"version":       string(h.version),
		"backend_url":   h.cfg.Backend.URL,
		"api_base_url":  h.cfg.Backend.APIBaseURL,
		"breaker":       h.backend.BreakerState(),
		"cache":         h.cfg.Cache.Type,
		"cache_status":  cacheStatus,
		"faq_refresher": refresher,
	})
}

func (h *HealthHandler) cacheStatus(ctx context.Context) string {
	p, ok := h.cache.(cache.Pinger)
	if !ok {
		return "ok"
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
