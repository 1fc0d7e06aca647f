package image

import (
	"context"
	"errors"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/buzzzzx/shanbor/internal/api/respond"
	"github.com/buzzzzx/shanbor/internal/codec"
	"github.com/buzzzzx/shanbor/internal/fetcher"
	"github.com/buzzzzx/shanbor/internal/processor"
	imagesvc "github.com/buzzzzx/shanbor/internal/service/image"
)

// service defines the interface for rendering images.
type service interface {
	Render(ctx context.Context, token, rawURL string) (processor.Result, error)
}

// Handler provides HTTP handlers for image rendering endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

var errInternal = errors.New("internal error")

// statuses maps error kinds to response codes. The first match wins.
var statuses = []struct {
	err    error
	status int
}{
	{codec.ErrMalformed, http.StatusBadRequest},
	{codec.ErrUnknownVariant, http.StatusBadRequest},
	{imagesvc.ErrInvalidURL, http.StatusBadRequest},
	{processor.ErrUnsupportedFormat, http.StatusBadRequest},
	{processor.ErrTruncated, http.StatusBadRequest},
	{processor.ErrSourceTooLarge, http.StatusBadRequest},
	{processor.ErrInvalidStep, http.StatusBadRequest},
	{fetcher.ErrTimeout, http.StatusGatewayTimeout},
	{fetcher.ErrStatus, http.StatusBadGateway},
	{fetcher.ErrTooLarge, http.StatusBadGateway},
	{fetcher.ErrNetwork, http.StatusBadGateway},
	{context.Canceled, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusServiceUnavailable},
}

// StatusFor returns the HTTP status code for a Render error.
func StatusFor(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}

	return http.StatusInternalServerError
}

// Get renders the source image behind the url path parameter with the
// transformations encoded in the spec path parameter.
func (h *Handler) Get(c *ginext.Context) {
	token := c.Param("spec")
	rawURL := c.Param("url")

	res, err := h.service.Render(c.Request.Context(), token, rawURL)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			zlog.Logger.Error().Err(err).Int("status", status).Str("url", rawURL).Msg("failed to render image")
		} else {
			zlog.Logger.Warn().Err(err).Int("status", status).Str("url", rawURL).Msg("render rejected")
		}

		if status == http.StatusInternalServerError {
			err = errInternal
		}
		respond.Fail(c, status, err)
		return
	}

	respond.Image(c, res.ContentType, res.Data)
}

// Healthz reports that the server is up.
func (h *Handler) Healthz(c *ginext.Context) {
	respond.OK(c, "ok")
}
