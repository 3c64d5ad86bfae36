// Package client provides the upstream HTTP client for the platform backend.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"cursala-gateway/internal/config"
	"cursala-gateway/internal/metrics"
	"cursala-gateway/internal/model"
)

// ErrBreakerOpen is returned when the circuit breaker rejects a backend call.
var ErrBreakerOpen = errors.New("backend circuit breaker is open")

// BackendClient sends requests to the platform backend.
type BackendClient struct {
	httpClient *http.Client
	breaker    *gobreaker.TwoStepCircuitBreaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and, when
// configured, a circuit breaker. The metrics parameter is optional; pass nil
// to disable upstream metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Backend.IdleConnections,
		MaxIdleConnsPerHost: cfg.Backend.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "backend_client"),
		metrics: m,
	}

	if b := cfg.Backend.Breaker; b.Enabled {
		c.breaker = gobreaker.NewTwoStepCircuitBreaker(c.breakerSettings(b))
	}

	return c
}

func (c *BackendClient) breakerSettings(b config.BreakerConfig) gobreaker.Settings {
	minRequests := uint32(max(b.MinRequests, 1)) //nolint:gosec // bounded by config validation
	return gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Interval:    time.Duration(b.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(b.OpenSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= b.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if c.metrics != nil {
				c.metrics.BreakerState.Set(float64(to))
			}
		},
	}
}

// BreakerState reports the breaker state, or "disabled" when no breaker is configured.
func (c *BackendClient) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Do executes an HTTP request against the backend and returns the raw response.
// The caller is responsible for closing the response body. Transport errors
// and 5xx responses count as breaker failures; nothing is retried.
func (c *BackendClient) Do(req *http.Request) (*model.ForwardResponse, error) {
	var done func(success bool)
	if c.breaker != nil {
		var err error
		done, err = c.breaker.Allow()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
		}
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ForwardResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if done != nil {
			// A canceled inbound request says nothing about backend health.
			done(errors.Is(err, context.Canceled))
		}
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if done != nil {
		done(resp.StatusCode < http.StatusInternalServerError)
	}
	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.ForwardResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request and returns the response body as a stream.
// The caller is responsible for closing the returned body.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *BackendClient) DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ForwardResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	return c.Do(req)
}
