package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"cursala-gateway/internal/metrics"
)

// findRequestSample returns the requests_total sample whose labels include want.
func findRequestSample(t *testing.T, m *metrics.Metrics, want map[string]string) *dto.Metric {
	t.Helper()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "cursala_gateway_http_requests_total" {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			return metric
		}
	}
	return nil
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMetricsMiddleware_RouteLabels(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/direct", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/api/direct-simple", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/api/videos/:video", func(c echo.Context) error { return c.NoContent(http.StatusPartialContent) })

	serve(e, http.MethodGet, "/api/direct?path=/courses")
	serve(e, http.MethodGet, "/api/direct?path=/courses/1")
	serve(e, http.MethodGet, "/api/direct-simple?path=/x")
	serve(e, http.MethodGet, "/api/videos/intro.mp4")

	tests := []struct {
		route  string
		status string
		want   float64
	}{
		{"/api/direct", "200", 2},
		{"/api/direct-simple", "200", 1},
		{"/api/videos", "206", 1},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			s := findRequestSample(t, m, map[string]string{"route": tt.route, "status_code": tt.status})
			if s == nil {
				t.Fatalf("no sample for route=%s status=%s", tt.route, tt.status)
			}
			if v := s.GetCounter().GetValue(); v != tt.want {
				t.Errorf("counter = %v, want %v", v, tt.want)
			}
		})
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	serve(e, http.MethodGet, "/healthz")

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "cursala_gateway_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					return
				}
			}
		}
	}
	t.Error("expected cursala_gateway_http_request_duration_seconds with at least one sample")
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/fetch", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too large")
	})

	serve(e, http.MethodGet, "/api/fetch?path=/faqs")

	if findRequestSample(t, m, map[string]string{"route": "/api/fetch", "status_code": "413"}) == nil {
		t.Error("expected a /api/fetch sample with status_code=413")
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/api/direct", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	serve(e, "XYZZY", "/api/direct")

	if findRequestSample(t, m, map[string]string{"route": "/api/direct", "method": "other"}) == nil {
		t.Error("expected a /api/direct sample with method=other")
	}
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))

	rec := serve(e, http.MethodGet, "/wp-login.php")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	if findRequestSample(t, m, map[string]string{"route": "other", "method": "GET", "status_code": "404"}) == nil {
		t.Error("expected a sample with route=other, method=GET, status_code=404")
	}
}

func TestMetricsMiddleware_SkipsScrapePath(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, "/metrics"))
	e.GET("/metrics", func(c echo.Context) error { return c.String(http.StatusOK, "") })

	serve(e, http.MethodGet, "/metrics")

	if s := findRequestSample(t, m, map[string]string{"route": "/metrics"}); s != nil {
		t.Errorf("scrape request recorded: %v", s)
	}
}
