package handler

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"cursala-gateway/internal/config"
	"cursala-gateway/internal/metrics"
)

// proxyMethods are the methods accepted by /api/direct and /api/fetch.
var proxyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// Handlers groups every route handler for registration.
type Handlers struct {
	fx.In

	Proxy       *ProxyHandler
	Video       *VideoHandler
	Redirect    *RedirectHandler
	FAQ         *FAQHandler
	Certificate *CertificateHandler
	Health      *HealthHandler
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, h Handlers, cfg *config.Config, m *metrics.Metrics) {
	e.GET("/healthz", h.Health.Healthz)
	e.GET("/gateway/status", h.Health.Status)

	e.Match(proxyMethods, "/api/direct", h.Proxy.Direct)
	e.GET("/api/direct-simple", h.Proxy.Simple)
	e.Match(proxyMethods, "/api/fetch", h.Proxy.Legacy)

	e.Match([]string{http.MethodGet, http.MethodHead}, "/api/videos/:video", h.Video.Stream)
	e.GET("/api/file-redirect", h.Redirect.FileRedirect)

	e.GET("/api/faqs", h.FAQ.List)
	e.GET("/api/faqs/categories", h.FAQ.Categories)
	e.GET("/api/certificates/:code", h.Certificate.Validate)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}

// pathParam returns the decoded value of a path parameter. Echo routes on the
// raw path, so encoded segments arrive still escaped.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
