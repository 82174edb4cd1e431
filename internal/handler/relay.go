package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"hls-relay-go/internal/request"
	"hls-relay-go/internal/service"
)

// forwardableResponseHeaders are the origin response headers passed
// through on the streaming path. Content-Type is handled separately.
var forwardableResponseHeaders = []string{
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Cache-Control",
}

// RelayHandler serves the relay endpoint: it decodes the target from the
// query string, fetches it, and returns the rewritten playlist or the
// streamed media body.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle serves GET /?url=...&headers=...
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	rr, err := request.Decode(req.URL.Query())
	if err != nil {
		// Decode failures never reach the origin.
		return h.mapDecodeError(c, err)
	}
	rr.Range = req.Header.Get("Range")

	resp, err := h.service.Relay(req.Context(), rr)
	if err != nil {
		return h.mapFetchError(c, err)
	}

	if resp.Playlist != nil {
		return c.Blob(resp.StatusCode, resp.ContentType, resp.Playlist)
	}

	defer func() { _ = resp.Stream.Close() }()

	for _, key := range forwardableResponseHeaders {
		if v := resp.Header.Get(key); v != "" {
			c.Response().Header().Set(key, v)
		}
	}
	if resp.ContentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, resp.ContentType)
	}
	c.Response().WriteHeader(resp.StatusCode)

	// Stream the origin body directly to the client. If io.Copy fails
	// mid-stream (client disconnect, origin reset), the status has
	// already been sent, so the client sees a truncated body. Inherent
	// to streaming relays; logged for observability.
	if _, err := io.Copy(c.Response(), resp.Stream); err != nil {
		h.logger.Error("streaming origin body",
			"err", err,
			"target", rr.Target.Host,
		)
	}

	return nil
}

func (h *RelayHandler) mapDecodeError(c echo.Context, err error) error {
	h.logger.Warn("decode error", "err", err)

	code := "bad_request"
	switch {
	case errors.Is(err, request.ErrMissingTarget):
		code = "missing_target"
	case errors.Is(err, request.ErrInvalidTarget):
		code = "invalid_target"
	case errors.Is(err, request.ErrMalformedHeaders):
		code = "malformed_headers"
	case errors.Is(err, request.ErrTooManyHeaders):
		code = "too_many_headers"
	}

	return c.JSON(http.StatusBadRequest, map[string]string{
		"code":  code,
		"error": err.Error(),
	})
}

func (h *RelayHandler) mapFetchError(c echo.Context, err error) error {
	h.logger.Error("relay error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrPlaylistTooLarge) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin playlist too large to rewrite",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "origin request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "origin request timed out",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "origin connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "origin request failed",
	})
}
