// Package request decodes inbound relay query parameters and encodes
// relay URLs for rewritten playlist references. Decode and Encode are
// inverses: decoding a URL produced by Encode yields the original
// target and header set exactly.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"hls-relay-go/internal/model"
)

// Decode-time errors. All are client-caused and map to HTTP 400.
var (
	ErrMissingTarget    = errors.New("missing required `url` query parameter")
	ErrInvalidTarget    = errors.New("`url` must be an absolute http(s) URL")
	ErrMalformedHeaders = errors.New("`headers` must be a URL-encoded JSON object of string values")
	ErrTooManyHeaders   = errors.New("too many headers")
)

// MaxHeaderCount caps the decoded header map size.
const MaxHeaderCount = 50

// Decode extracts and validates the target URL and optional header set
// from the inbound query parameters. It is a pure function of its input.
func Decode(q url.Values) (*model.RelayRequest, error) {
	raw := q.Get("url")
	if raw == "" {
		return nil, ErrMissingTarget
	}

	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("%w: got scheme %q", ErrInvalidTarget, target.Scheme)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}

	headers := map[string]string{}
	rawHeaders := q.Get("headers")
	if rawHeaders != "" {
		// Strict flat string-to-string map; any other JSON shape
		// (nested objects, arrays, numbers, null values) is rejected
		// rather than coerced. A literal null needs its own check:
		// json.Unmarshal treats it as a no-op on a map target.
		if strings.TrimSpace(rawHeaders) == "null" {
			return nil, fmt.Errorf("%w: got null", ErrMalformedHeaders)
		}
		if err := json.Unmarshal([]byte(rawHeaders), &headers); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedHeaders, err)
		}
		if len(headers) > MaxHeaderCount {
			return nil, fmt.Errorf("%w: %d headers, limit %d", ErrTooManyHeaders, len(headers), MaxHeaderCount)
		}
	}

	return &model.RelayRequest{
		Target:     target,
		Headers:    headers,
		RawHeaders: rawHeaders,
		Origin:     q.Get("origin"),
	}, nil
}

// Encode builds the relay query string for a resolved target URL,
// re-embedding the verbatim `headers` parameter value from the original
// request. The result is the query part of a relay URL ("url=...&headers=...").
func Encode(target string, rawHeaders string) string {
	q := "url=" + url.QueryEscape(target)
	if rawHeaders != "" {
		q += "&headers=" + url.QueryEscape(rawHeaders)
	}
	return q
}
