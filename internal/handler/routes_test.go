package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"

	"hls-relay-go/internal/client"
	"hls-relay-go/internal/config"
	"hls-relay-go/internal/service"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write([]byte("segment-bytes"))
	}))
	defer origin.Close()

	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	oc := client.NewOriginClient(cfg, logger, nil)
	svc := service.NewRelayService(oc, cfg, logger, nil)

	relay := NewRelayHandler(svc, logger)
	health := NewHealthHandler(&config.Config{}, "test")

	e := echo.New()
	RegisterRoutes(e, relay, health)

	relayPath := "/?url=" + url.QueryEscape(origin.URL+"/seg1.ts")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /status", http.MethodGet, "/status", http.StatusOK},
		{"GET / relays", http.MethodGet, relayPath, http.StatusOK},
		{"HEAD / relays", http.MethodHead, relayPath, http.StatusOK},
		{"GET / without url is 400", http.MethodGet, "/", http.StatusBadRequest},
		{"POST / not allowed", http.MethodPost, "/", http.StatusMethodNotAllowed},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
