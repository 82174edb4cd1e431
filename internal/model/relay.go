// Package model defines shared types for the relay.
package model

import (
	"io"
	"net/http"
	"net/url"
)

// RelayRequest is a decoded inbound request: the origin resource to fetch
// and the header set to attach to the upstream request.
type RelayRequest struct {
	// Target is the absolute http(s) URL of the origin resource.
	Target *url.URL

	// Headers are the upstream request headers decoded from the
	// `headers` query parameter. Never nil; empty when absent.
	Headers map[string]string

	// RawHeaders is the verbatim `headers` parameter value from the
	// inbound query string. It is re-embedded unchanged on every
	// rewritten playlist URL so the encode/decode round trip is
	// bit-exact.
	RawHeaders string

	// Origin, when set via the `origin` query parameter, is sent
	// upstream as the Origin header.
	Origin string

	// Range is the inbound Range header, forwarded upstream so media
	// seeking works through the relay.
	Range string
}

// FetchedResource is the upstream response handed to the rewrite engine.
type FetchedResource struct {
	StatusCode  int
	Header      http.Header
	ContentType string

	// FinalURL is the effective URL after upstream redirects. Relative
	// playlist references are resolved against it.
	FinalURL *url.URL

	// Body is the upstream body stream. Ownership transfers to the
	// caller, which must close it.
	Body io.ReadCloser
}

// RelayResponse is what the handler writes back to the client. Exactly one
// of Playlist or Stream is set: a rewritten playlist is fully buffered,
// everything else is passed through as a stream.
type RelayResponse struct {
	StatusCode  int
	ContentType string

	// Header carries the origin response headers; the handler forwards
	// an allowlisted subset on the streaming path.
	Header http.Header

	Playlist []byte
	Stream   io.ReadCloser
}
