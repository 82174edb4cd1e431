package request

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
)

func TestDecode_MissingTarget(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
	}{
		{"no parameters", url.Values{}},
		{"empty url", url.Values{"url": {""}}},
		{"only headers", url.Values{"headers": {`{"A":"b"}`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.query)
			if !errors.Is(err, ErrMissingTarget) {
				t.Errorf("Decode() error = %v, want ErrMissingTarget", err)
			}
		})
	}
}

func TestDecode_InvalidTarget(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"file scheme", "file:///etc/passwd"},
		{"ftp scheme", "ftp://example.com/playlist.m3u8"},
		{"relative path", "video/index.m3u8"},
		{"scheme relative", "//cdn.example.com/index.m3u8"},
		{"missing host", "http:///index.m3u8"},
		{"garbage", "http://%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(url.Values{"url": {tt.url}})
			if !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("Decode(%q) error = %v, want ErrInvalidTarget", tt.url, err)
			}
		})
	}
}

func TestDecode_Headers(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    map[string]string
		wantErr error
	}{
		{
			name:    "absent yields empty map",
			headers: "",
			want:    map[string]string{},
		},
		{
			name:    "flat string map",
			headers: `{"Referer":"https://example.com","X-Token":"abc"}`,
			want:    map[string]string{"Referer": "https://example.com", "X-Token": "abc"},
		},
		{
			name:    "not JSON",
			headers: "not-json",
			wantErr: ErrMalformedHeaders,
		},
		{
			name:    "JSON array",
			headers: `["Referer","https://example.com"]`,
			wantErr: ErrMalformedHeaders,
		},
		{
			name:    "nested object value",
			headers: `{"Referer":{"nested":"x"}}`,
			wantErr: ErrMalformedHeaders,
		},
		{
			name:    "numeric value",
			headers: `{"X-Count":3}`,
			wantErr: ErrMalformedHeaders,
		},
		{
			name:    "null value",
			headers: `{"Referer":null}`,
			wantErr: ErrMalformedHeaders,
		},
		{
			name:    "null literal",
			headers: `null`,
			wantErr: ErrMalformedHeaders,
		},
		{
			name:    "null literal with whitespace",
			headers: ` null `,
			wantErr: ErrMalformedHeaders,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{"url": {"https://cdn.example.com/index.m3u8"}}
			if tt.headers != "" {
				q.Set("headers", tt.headers)
			}

			got, err := Decode(q)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got.Headers, tt.want) {
				t.Errorf("Headers = %v, want %v", got.Headers, tt.want)
			}
		})
	}
}

func TestDecode_TooManyHeaders(t *testing.T) {
	headers := "{"
	for i := 0; i < MaxHeaderCount+1; i++ {
		if i > 0 {
			headers += ","
		}
		headers += `"X-H` + string(rune('A'+i%26)) + string(rune('0'+i/26)) + `":"v"`
	}
	headers += "}"

	q := url.Values{
		"url":     {"https://cdn.example.com/index.m3u8"},
		"headers": {headers},
	}
	_, err := Decode(q)
	if !errors.Is(err, ErrTooManyHeaders) {
		t.Errorf("Decode() error = %v, want ErrTooManyHeaders", err)
	}
}

func TestDecode_OriginParameter(t *testing.T) {
	q := url.Values{
		"url":    {"https://cdn.example.com/index.m3u8"},
		"origin": {"https://player.example.com"},
	}
	got, err := Decode(q)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Origin != "https://player.example.com" {
		t.Errorf("Origin = %q, want %q", got.Origin, "https://player.example.com")
	}
}

// Encoding a (target, headers) pair and decoding the resulting relay
// query must reproduce the pair exactly.
func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers string
	}{
		{
			name:   "no headers",
			target: "https://cdn.example.com/video/seg1.ts",
		},
		{
			name:    "referer header",
			target:  "https://cdn.example.com/video/index.m3u8",
			headers: `{"Referer":"https://example.com"}`,
		},
		{
			name:    "target with query and special characters",
			target:  "https://cdn.example.com/seg.ts?token=a%2Fb&expires=171+5",
			headers: `{"User-Agent":"Mozilla/5.0 (X11; Linux)","Cookie":"a=b; c=d"}`,
		},
		{
			name:    "unicode header value",
			target:  "http://origin.example.com:8080/live/playlist.m3u8",
			headers: `{"X-Note":"héllo wörld"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(Encode(tt.target, tt.headers))
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}

			got, err := Decode(q)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Target.String() != tt.target {
				t.Errorf("Target = %q, want %q", got.Target.String(), tt.target)
			}
			if got.RawHeaders != tt.headers {
				t.Errorf("RawHeaders = %q, want %q", got.RawHeaders, tt.headers)
			}
		})
	}
}
