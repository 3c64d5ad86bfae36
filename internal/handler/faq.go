package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cursala-gateway/internal/faq"
)

// FAQHandler serves the cached FAQ read model.
type FAQHandler struct {
	service *faq.Service
	logger  *slog.Logger
}

// NewFAQHandler creates a FAQHandler.
func NewFAQHandler(svc *faq.Service, logger *slog.Logger) *FAQHandler {
	return &FAQHandler{
		service: svc,
		logger:  logger.With("component", "faq_handler"),
	}
}

// List serves /api/faqs. q searches, category filters, neither lists all
// active FAQs.
func (h *FAQHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		resp faq.Response
		err  error
	)
	switch q, category := c.QueryParam("q"), c.QueryParam("category"); {
	case q != "":
		resp, err = h.service.Search(ctx, q)
	case category != "":
		resp, err = h.service.ByCategory(ctx, category)
	default:
		resp, err = h.service.Active(ctx)
	}

	if err != nil {
		h.logger.Warn("faq read failed", "err", err)
		return c.JSON(http.StatusBadGateway, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Categories serves /api/faqs/categories.
func (h *FAQHandler) Categories(c echo.Context) error {
	resp, err := h.service.Categories(c.Request().Context())
	if err != nil {
		h.logger.Warn("faq categories read failed", "err", err)
		return c.JSON(http.StatusBadGateway, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
