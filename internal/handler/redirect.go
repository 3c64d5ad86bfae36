package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cursala-gateway/internal/service"
)

// RedirectHandler sends browsers straight to the backend's public download URL.
type RedirectHandler struct {
	service *service.ForwardService
}

// NewRedirectHandler creates a RedirectHandler.
func NewRedirectHandler(svc *service.ForwardService) *RedirectHandler {
	return &RedirectHandler{service: svc}
}

// FileRedirect serves /api/file-redirect?file=&token=.
func (h *RedirectHandler) FileRedirect(c echo.Context) error {
	file := c.QueryParam("file")
	if file == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Parámetro 'file' es requerido",
		})
	}
	return c.Redirect(http.StatusFound, h.service.PublicDownloadURL(file, c.QueryParam("token")))
}
