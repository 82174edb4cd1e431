// Package client provides the outbound HTTP client for origin servers.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"hls-relay-go/internal/config"
	"hls-relay-go/internal/metrics"
	"hls-relay-go/internal/model"
)

// OriginClient fetches resources from origin servers on behalf of clients.
type OriginClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOriginClient creates an OriginClient with connection pooling, timeouts
// and a redirect cap. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func NewOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OriginClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	maxRedirects := cfg.Upstream.MaxRedirects

	return &OriginClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		logger:  logger.With("component", "origin_client"),
		metrics: m,
	}
}

// Get fetches the target URL with the given header set and returns the
// response as a FetchedResource. The FinalURL reflects any redirects the
// origin performed, so relative playlist references resolve correctly.
// The caller is responsible for closing the body.
//
// The provided context controls the lifetime of the fetch: when it is
// canceled (e.g. the client disconnects mid-stream), the in-flight
// request is aborted.
func (c *OriginClient) Get(ctx context.Context, target string, header http.Header) (*model.FetchedResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	req.Header = header

	c.logger.Debug("origin fetch", "url", target)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via FetchedResource
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(duration)
	}

	if err != nil {
		return nil, fmt.Errorf("origin request: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.FetchedResource{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL,
		Body:        resp.Body,
	}, nil
}
