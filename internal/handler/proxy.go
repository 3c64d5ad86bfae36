package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"cursala-gateway/internal/model"
	"cursala-gateway/internal/service"
)

// tokenPattern matches token values in URLs embedded in error messages.
var tokenPattern = regexp.MustCompile(`(?i)(token=)[^&\s"]+`)

// ProxyHandler serves the three forwarding routes.
type ProxyHandler struct {
	service *service.ForwardService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ForwardService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Direct serves /api/direct.
func (h *ProxyHandler) Direct(c echo.Context) error {
	return h.serve(c, h.service.Direct)
}

// Simple serves /api/direct-simple.
func (h *ProxyHandler) Simple(c echo.Context) error {
	return h.serve(c, h.service.Simple)
}

// Legacy serves /api/fetch.
func (h *ProxyHandler) Legacy(c echo.Context) error {
	return h.serve(c, h.service.Legacy)
}

func (h *ProxyHandler) serve(c echo.Context, forward func(*model.ForwardRequest) (*model.Reply, error)) error {
	req := c.Request()

	pr := &model.ForwardRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Path:   c.QueryParam("path"),
		Token:  c.QueryParam("token"),
		Header: req.Header,
		Body:   req.Body,
	}

	reply, err := forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	return h.writeReply(c, reply)
}

// writeReply streams reply to the client and closes its body.
func (h *ProxyHandler) writeReply(c echo.Context, reply *model.Reply) error {
	defer func() { _ = reply.Body.Close() }()

	for key, vals := range reply.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().WriteHeader(reply.StatusCode)

	// Headers are already sent; a copy failure (client gone, backend reset)
	// leaves a truncated body and can only be logged.
	if _, err := io.Copy(c.Response(), reply.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	msg := sanitizeError(err)

	if errors.Is(err, service.ErrMissingPath) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": service.ErrMissingPath.Error(),
		})
	}

	h.logger.Error("proxy error",
		"err", msg,
		"path", c.Request().URL.Path,
		"backend_path", c.QueryParam("path"),
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": msg,
	})
}

// sanitizeError redacts tokens from error messages that may contain backend URLs.
func sanitizeError(err error) string {
	return tokenPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
