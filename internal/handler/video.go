package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"cursala-gateway/internal/service"
)

// VideoHandler streams local course videos to authenticated clients.
type VideoHandler struct {
	service *service.VideoService
	logger  *slog.Logger
}

// NewVideoHandler creates a VideoHandler.
func NewVideoHandler(svc *service.VideoService, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{
		service: svc,
		logger:  logger.With("component", "video_handler"),
	}
}

// Stream serves /api/videos/:video with single-range support.
func (h *VideoHandler) Stream(c echo.Context) error {
	// The token is not verified here, only required; auth precedes any disk access.
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ") {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "No autorizado - Token requerido",
		})
	}

	f, size, err := h.service.Open(pathParam(c, "video"))
	switch {
	case errors.Is(err, service.ErrInvalidVideoName):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Nombre de video inválido"})
	case errors.Is(err, service.ErrVideoNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Video no encontrado"})
	case err != nil:
		h.logger.Error("open video", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Error al leer el video"})
	}
	defer func() { _ = f.Close() }()

	res := c.Response()
	header := res.Header()

	rangeHeader := c.Request().Header.Get("Range")
	if rangeHeader == "" {
		header.Set(echo.HeaderContentType, "video/mp4")
		header.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
		header.Set("Accept-Ranges", "bytes")
		header.Set("Cache-Control", "no-store")
		res.WriteHeader(http.StatusOK)
		h.copy(c, f)
		return nil
	}

	br, err := service.ParseRange(rangeHeader, size)
	if err != nil {
		header.Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		return c.NoContent(http.StatusRequestedRangeNotSatisfiable)
	}

	header.Set(echo.HeaderContentType, "video/mp4")
	header.Set(echo.HeaderContentLength, strconv.FormatInt(br.Length(), 10))
	header.Set("Content-Range", br.ContentRange(size))
	header.Set("Accept-Ranges", "bytes")
	header.Set("Cache-Control", "no-store")
	res.WriteHeader(http.StatusPartialContent)
	h.copy(c, io.NewSectionReader(f, br.Start, br.Length()))
	return nil
}

func (h *VideoHandler) copy(c echo.Context, r io.Reader) {
	if c.Request().Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(c.Response(), r); err != nil {
		h.logger.Debug("video stream interrupted", "video", c.Param("video"), "err", err)
	}
}
