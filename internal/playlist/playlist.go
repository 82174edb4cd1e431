// Package playlist implements the M3U8 rewrite engine: it classifies
// upstream responses as playlists or raw media and rewrites every URI
// reference inside a playlist so segment fetches route back through the
// relay.
package playlist

import (
	"bytes"
	"net/url"
	"strings"
)

// playlistMIMETypes are the Content-Type values recognized as M3U8.
// Matching is substring-based on "mpegurl", which also covers variants
// like audio/x-mpegurl.
var playlistMIMETypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"audio/mpegurl",
	"mpegurl",
}

// DefaultContentType is used when the upstream playlist response carries
// no Content-Type.
const DefaultContentType = "application/vnd.apple.mpegurl"

// SniffLen is how many body bytes Sniff needs at most.
const SniffLen = 512

// Sniff reports whether a response should be treated as an M3U8 playlist.
// Detection precedence: declared Content-Type, then the resolved URL's
// path extension, then the body prefix (first non-blank line #EXTM3U).
func Sniff(contentType string, finalURL *url.URL, prefix []byte) bool {
	ct := strings.ToLower(contentType)
	for _, mime := range playlistMIMETypes {
		if strings.Contains(ct, mime) {
			return true
		}
	}

	if finalURL != nil && strings.HasSuffix(strings.ToLower(finalURL.Path), ".m3u8") {
		return true
	}

	for _, line := range bytes.Split(prefix, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return bytes.Equal(line, []byte("#EXTM3U"))
	}
	return false
}

// EncodeFunc turns a resolved absolute URI into a relay URL.
type EncodeFunc func(resolved string) string

// Result reports what a Rewrite pass did.
type Result struct {
	Body []byte

	// RewrittenURIs counts line-level and attribute-level URI values
	// that were replaced with relay URLs.
	RewrittenURIs int

	// SkippedTags counts tags whose attribute syntax could not be
	// parsed and were passed through unchanged.
	SkippedTags int
}

// Rewrite parses the playlist body line by line and replaces every URI
// reference, both bare segment lines and URI="..." tag attributes, with
// a relay URL produced by encode. Tag structure around rewritten values
// is preserved byte for byte. Lines that cannot be parsed or resolved
// pass through unchanged; a broken tag never aborts the playlist.
//
// The body must be fully buffered by the caller; rewriting is not
// streamable.
func Rewrite(body []byte, base *url.URL, encode EncodeFunc) Result {
	text := string(body)
	trailingNewline := strings.HasSuffix(text, "\n")
	if trailingNewline {
		text = strings.TrimSuffix(text, "\n")
	}

	res := Result{}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")

		if strings.TrimSpace(line) == "" {
			lines[i] = line
			continue
		}

		if strings.HasPrefix(line, "#") {
			rewritten, n, ok := rewriteTag(line, func(raw string) (string, bool) {
				return rewriteURI(raw, base, encode)
			})
			if !ok {
				res.SkippedTags++
				lines[i] = line
				continue
			}
			res.RewrittenURIs += n
			lines[i] = rewritten
			continue
		}

		// Bare non-comment line: a segment or sub-playlist reference.
		if wrapped, ok := rewriteURI(line, base, encode); ok {
			res.RewrittenURIs++
			lines[i] = wrapped
		} else {
			lines[i] = line
		}
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	res.Body = []byte(out)
	return res
}

// rewriteURI resolves a URI reference against the playlist base and
// wraps it in a relay URL. Absolute references are used as-is before
// wrapping; relative forms (scheme-relative, path-absolute, path-relative)
// resolve per RFC 3986 reference resolution.
func rewriteURI(raw string, base *url.URL, encode EncodeFunc) (string, bool) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	var resolved *url.URL
	if ref.IsAbs() {
		resolved = ref
	} else {
		if base == nil {
			return "", false
		}
		resolved = base.ResolveReference(ref)
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}

	return encode(resolved.String()), true
}
