package playlist

import "strings"

// hasURIAttr reports whether a tag line carries a URI or URL attribute
// worth parsing. Tags without one (#EXTINF, #EXT-X-TARGETDURATION, ...)
// skip the tokenizer entirely and pass through verbatim.
func hasURIAttr(line string) bool {
	upper := strings.ToUpper(line)
	return strings.Contains(upper, "URI=") || strings.Contains(upper, "URL=")
}

// isURIKey matches attribute names whose value is a URI reference.
// Key-material tags, initialization-segment tags and alternate-rendition
// tags all use URI; URL appears in some non-standard playlists.
func isURIKey(key string) bool {
	return strings.EqualFold(key, "URI") || strings.EqualFold(key, "URL")
}

// rewriteTag scans the attribute list of a tag line and rewrites quoted
// URI/URL attribute values through rewrite. Everything else, attribute
// names, other values, quoting and separators, is emitted byte for byte.
// It returns the rewritten line, the number of rewritten values, and
// whether the attribute syntax parsed cleanly; on a parse failure
// (unterminated quote, trailing garbage after a quoted value) the
// original line is returned untouched.
func rewriteTag(line string, rewrite func(raw string) (string, bool)) (string, int, bool) {
	if !hasURIAttr(line) {
		return line, 0, true
	}

	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return line, 0, true
	}

	var b strings.Builder
	b.Grow(len(line) * 2)
	b.WriteString(line[:colon+1])

	attrs := line[colon+1:]
	rewritten := 0
	i := 0
	for i < len(attrs) {
		// Attribute name, up to '=' or ','.
		start := i
		for i < len(attrs) && attrs[i] != '=' && attrs[i] != ',' {
			i++
		}
		key := attrs[start:i]

		if i == len(attrs) || attrs[i] == ',' {
			// Token without a value (e.g. the title part of a
			// mixed tag); emit verbatim.
			b.WriteString(key)
			if i < len(attrs) {
				b.WriteByte(',')
				i++
			}
			continue
		}

		b.WriteString(key)
		b.WriteByte('=')
		i++

		if i < len(attrs) && attrs[i] == '"' {
			end := strings.IndexByte(attrs[i+1:], '"')
			if end < 0 {
				return line, 0, false
			}
			val := attrs[i+1 : i+1+end]
			if isURIKey(key) && val != "" {
				if wrapped, ok := rewrite(val); ok {
					val = wrapped
					rewritten++
				}
			}
			b.WriteByte('"')
			b.WriteString(val)
			b.WriteByte('"')
			i += end + 2
		} else {
			start = i
			for i < len(attrs) && attrs[i] != ',' {
				i++
			}
			b.WriteString(attrs[start:i])
		}

		if i < len(attrs) {
			if attrs[i] != ',' {
				return line, 0, false
			}
			b.WriteByte(',')
			i++
		}
	}

	return b.String(), rewritten, true
}
