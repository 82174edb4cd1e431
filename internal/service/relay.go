// Package service implements the per-request relay pipeline: fetch the
// origin resource, classify it, and either rewrite the playlist text or
// pass the body through as a stream.
package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"hls-relay-go/internal/client"
	"hls-relay-go/internal/config"
	"hls-relay-go/internal/metrics"
	"hls-relay-go/internal/model"
	"hls-relay-go/internal/playlist"
	"hls-relay-go/internal/request"
)

// ErrPlaylistTooLarge is returned when an origin playlist exceeds the
// configured buffering cap.
var ErrPlaylistTooLarge = errors.New("origin playlist exceeds size limit")

// maxPlaylistLines caps how many lines a playlist may contain.
const maxPlaylistLines = 200_000

// RelayService runs the fetch-classify-rewrite pipeline. It holds no
// per-request state; concurrent requests share only the origin client's
// connection pool.
type RelayService struct {
	client  *client.OriginClient
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayService creates a RelayService. The metrics parameter is
// optional; pass nil to disable rewrite metrics recording.
func NewRelayService(c *client.OriginClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *RelayService {
	return &RelayService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
	}
}

// Relay fetches the target resource and returns either a rewritten
// playlist body or a pass-through stream. For streamed responses the
// caller owns Stream and must close it; canceling ctx aborts the
// in-flight origin fetch.
func (s *RelayService) Relay(ctx context.Context, req *model.RelayRequest) (*model.RelayResponse, error) {
	header := s.buildHeader(req)

	res, err := s.client.Get(ctx, req.Target.String(), header)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Target.Host, err)
	}

	// Peek a bounded prefix for body sniffing without breaking the
	// streaming pass-through path.
	br := bufio.NewReaderSize(res.Body, playlist.SniffLen)
	prefix, _ := br.Peek(playlist.SniffLen)

	if !playlist.Sniff(res.ContentType, res.FinalURL, prefix) {
		return &model.RelayResponse{
			StatusCode:  res.StatusCode,
			ContentType: res.ContentType,
			Header:      res.Header,
			Stream:      &streamBody{r: br, c: res.Body},
		}, nil
	}

	defer func() { _ = res.Body.Close() }()

	rewritten, err := s.rewrite(br, req, res)
	if err != nil {
		return nil, err
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = playlist.DefaultContentType
	}

	return &model.RelayResponse{
		StatusCode:  res.StatusCode,
		ContentType: contentType,
		Playlist:    rewritten,
	}, nil
}

// rewrite buffers the playlist body (rewriting needs the whole document)
// and runs the rewrite engine over it.
func (s *RelayService) rewrite(r io.Reader, req *model.RelayRequest, res *model.FetchedResource) ([]byte, error) {
	maxBytes := s.cfg.Relay.PlaylistMaxBytes

	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read playlist body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrPlaylistTooLarge, maxBytes)
	}
	// Count lines, not separators: a final line without a trailing
	// newline still counts.
	lineCount := bytes.Count(body, []byte("\n"))
	if len(body) > 0 && body[len(body)-1] != '\n' {
		lineCount++
	}
	if lineCount > maxPlaylistLines {
		return nil, fmt.Errorf("%w: limit %d lines", ErrPlaylistTooLarge, maxPlaylistLines)
	}

	result := playlist.Rewrite(body, res.FinalURL, func(resolved string) string {
		return "/?" + request.Encode(resolved, req.RawHeaders)
	})

	if result.SkippedTags > 0 {
		s.logger.Warn("unrewritable playlist tags passed through",
			"count", result.SkippedTags,
			"url", res.FinalURL.String(),
		)
	}
	if s.metrics != nil {
		s.metrics.PlaylistsRewritten.Inc()
		s.metrics.URIsRewritten.Add(float64(result.RewrittenURIs))
		s.metrics.UnrewritableTags.Add(float64(result.SkippedTags))
	}

	s.logger.Debug("playlist rewritten",
		"url", res.FinalURL.String(),
		"uris", result.RewrittenURIs,
	)

	return result.Body, nil
}

// buildHeader merges the decoded header set over the relay's baseline
// headers.
func (s *RelayService) buildHeader(req *model.RelayRequest) http.Header {
	h := make(http.Header)
	for k, v := range req.Headers {
		h.Set(k, v)
	}
	if h.Get("User-Agent") == "" {
		h.Set("User-Agent", s.cfg.Relay.UserAgent)
	}
	if req.Origin != "" {
		h.Set("Origin", req.Origin)
	}
	if req.Range != "" {
		h.Set("Range", req.Range)
	}
	return h
}

// streamBody pairs the buffered sniff reader with the underlying origin
// body so Close releases the origin connection.
type streamBody struct {
	r io.Reader
	c io.Closer
}

func (b *streamBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *streamBody) Close() error               { return b.c.Close() }
