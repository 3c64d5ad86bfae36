package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cursala-gateway/internal/certificate"
)

// CertificateHandler serves certificate validation.
type CertificateHandler struct {
	validator *certificate.Validator
	logger    *slog.Logger
}

// NewCertificateHandler creates a CertificateHandler.
func NewCertificateHandler(v *certificate.Validator, logger *slog.Logger) *CertificateHandler {
	return &CertificateHandler{
		validator: v,
		logger:    logger.With("component", "certificate_handler"),
	}
}

// Validate serves /api/certificates/:code.
func (h *CertificateHandler) Validate(c echo.Context) error {
	cert, err := h.validator.Validate(c.Request().Context(), pathParam(c, "code"))
	switch {
	case errors.Is(err, certificate.ErrEmptyCode):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Código de verificación requerido",
		})
	case errors.Is(err, certificate.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": certificate.ErrNotFound.Error(),
		})
	case err != nil:
		h.logger.Error("certificate validation failed", "err", sanitizeError(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": sanitizeError(err),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": cert})
}
