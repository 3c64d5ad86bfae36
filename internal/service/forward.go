// Package service implements the request forwarding and file-serving logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cursala-gateway/internal/client"
	"cursala-gateway/internal/config"
	"cursala-gateway/internal/model"
)

// ErrMissingPath is returned by routes that require the path parameter.
var ErrMissingPath = errors.New("El parámetro 'path' es requerido")

// connectionHeaders are inbound headers that belong to the browser's
// connection and are regenerated by the HTTP client. Accept-Encoding is
// dropped so the transport negotiates and decodes compression itself.
var connectionHeaders = []string{
	"Host",
	"Connection",
	"Content-Length",
	"Accept-Encoding",
}

// Route parameterizes the forwarding engine. /api/direct, /api/direct-simple
// and /api/fetch are three Route values over the same Forward call.
type Route struct {
	Name string
	// RequirePath rejects requests without a path with ErrMissingPath.
	RequirePath bool
	// Target builds the upstream URL from the path parameter.
	Target func(path string) string
	// RequestHeaders derives upstream headers from the inbound ones.
	RequestHeaders func(in http.Header) http.Header
	// Relay turns the upstream response into the browser reply.
	Relay RelayFunc
}

// ForwardService forwards gateway requests to the platform backend.
type ForwardService struct {
	client     *client.BackendClient
	logger     *slog.Logger
	backendURL string

	direct *Route
	simple *Route
	legacy *Route
}

// NewForwardService creates a ForwardService with the three gateway routes.
func NewForwardService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) *ForwardService {
	backendURL := strings.TrimRight(cfg.Backend.URL, "/")
	apiBaseURL := strings.TrimRight(cfg.Backend.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = backendURL
	}

	return &ForwardService{
		client:     c,
		logger:     logger.With("component", "forward_service"),
		backendURL: backendURL,
		direct: &Route{
			Name: "direct",
			Target: func(path string) string {
				return backendURL + "/direct?path=" + url.QueryEscape(path)
			},
			RequestHeaders: stripConnectionHeaders,
			Relay:          relayDirect,
		},
		simple: &Route{
			Name:        "direct-simple",
			RequirePath: true,
			Target: func(path string) string {
				return backendURL + path
			},
			RequestHeaders: authorizationOnly,
			Relay:          relaySimple,
		},
		legacy: &Route{
			Name: "fetch",
			Target: func(path string) string {
				return apiBaseURL + path
			},
			RequestHeaders: stripConnectionHeaders,
			Relay:          relayLegacy,
		},
	}
}

// Direct forwards through the backend's /direct indirection endpoint.
func (s *ForwardService) Direct(pr *model.ForwardRequest) (*model.Reply, error) {
	return s.Forward(s.direct, pr)
}

// Simple forwards a GET to the backend path verbatim.
func (s *ForwardService) Simple(pr *model.ForwardRequest) (*model.Reply, error) {
	pr.Method = http.MethodGet
	return s.Forward(s.simple, pr)
}

// Legacy forwards to the legacy API base and re-serves the body as JSON.
func (s *ForwardService) Legacy(pr *model.ForwardRequest) (*model.Reply, error) {
	return s.Forward(s.legacy, pr)
}

// Forward sends pr upstream according to route and returns the reply to
// write back. The caller is responsible for closing the reply body.
// Errors are local failures only (missing path, unreadable body, transport);
// upstream error statuses come back as replies.
func (s *ForwardService) Forward(route *Route, pr *model.ForwardRequest) (*model.Reply, error) {
	if route.RequirePath && pr.Path == "" {
		return nil, ErrMissingPath
	}

	ctx := pr.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	inbound := pr.Header
	if inbound == nil {
		inbound = http.Header{}
	}

	header := route.RequestHeaders(inbound)
	if pr.Token != "" {
		header.Set("Authorization", BearerToken(pr.Token))
	}

	var body io.Reader
	if carriesBody(pr.Method) {
		buf, contentType, err := encodeBody(inbound.Get("Content-Type"), pr.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		header.Set("Content-Type", contentType)
		body = buf
	}

	s.logger.Debug("forwarding request",
		"route", route.Name,
		"method", pr.Method,
		"path", pr.Path,
	)

	resp, err := s.client.DoStream(ctx, pr.Method, route.Target(pr.Path), header, body)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}

	return route.Relay(pr.Path, resp)
}

// PublicDownloadURL returns the backend URL that serves file publicly,
// carrying token as a query parameter when given.
func (s *ForwardService) PublicDownloadURL(file, token string) string {
	u := s.backendURL + "/file/" + url.PathEscape(file) + "/publicdownload"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// BearerToken returns token as an Authorization value, adding the Bearer
// prefix only when it is missing.
func BearerToken(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

// stripConnectionHeaders copies every inbound header except the
// connection-scoped ones.
func stripConnectionHeaders(in http.Header) http.Header {
	out := in.Clone()
	for _, h := range connectionHeaders {
		out.Del(h)
	}
	return out
}

// authorizationOnly keeps just the Authorization header.
func authorizationOnly(in http.Header) http.Header {
	out := make(http.Header)
	if v := in.Get("Authorization"); v != "" {
		out.Set("Authorization", v)
	}
	return out
}
