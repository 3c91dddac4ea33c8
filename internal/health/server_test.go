package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealthEndpoint(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	fail := func(ctx context.Context) error { return context.DeadlineExceeded }

	tests := []struct {
		name         string
		checker      Checker
		wantCode     int
		wantManifest string
		wantRPC      string
		wantPhase    string
	}{
		{
			name:         "all_ok",
			checker:      Checker{ManifestPing: ok, RPCPing: ok, Phase: func() string { return "scanning" }},
			wantCode:     http.StatusOK,
			wantManifest: "ok",
			wantRPC:      "ok",
			wantPhase:    "scanning",
		},
		{
			name:         "manifest_fail",
			checker:      Checker{ManifestPing: fail, RPCPing: ok},
			wantCode:     http.StatusServiceUnavailable,
			wantManifest: "fail",
			wantRPC:      "ok",
		},
		{
			name:         "rpc_fail",
			checker:      Checker{ManifestPing: ok, RPCPing: fail},
			wantCode:     http.StatusServiceUnavailable,
			wantManifest: "ok",
			wantRPC:      "fail",
		},
		{
			name:      "collector_failed",
			checker:   Checker{Phase: func() string { return "failed" }},
			wantCode:  http.StatusServiceUnavailable,
			wantPhase: "failed",
		},
		{
			name:     "no_checkers",
			checker:  Checker{},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()

			Handler(tt.checker, false).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["status"] != "ok" {
				t.Errorf("status = %q, want ok", resp["status"])
			}
			if resp["manifest"] != tt.wantManifest {
				t.Errorf("manifest = %q, want %q", resp["manifest"], tt.wantManifest)
			}
			if resp["rpc"] != tt.wantRPC {
				t.Errorf("rpc = %q, want %q", resp["rpc"], tt.wantRPC)
			}
			if resp["collector"] != tt.wantPhase {
				t.Errorf("collector = %q, want %q", resp["collector"], tt.wantPhase)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	w := httptest.NewRecorder()
	Handler(Checker{}, true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	Handler(Checker{}, false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("metrics should not be mounted, got %d", w.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := Serve("127.0.0.1:0", Handler(Checker{}, false))
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Shutdown(ctx, srv); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

type headFunc func(ctx context.Context) (uint64, error)

func (f headFunc) BlockNumber(ctx context.Context) (uint64, error) { return f(ctx) }

func TestRPCChecker(t *testing.T) {
	up := headFunc(func(context.Context) (uint64, error) { return 22094919, nil })
	down := headFunc(func(context.Context) (uint64, error) { return 0, errors.New("dial tcp: connection refused") })

	if err := NewRPCChecker(map[string]HeadReader{"Mainnet": up, "Base": up}).Ping(context.Background()); err != nil {
		t.Fatalf("expected healthy endpoints, got %v", err)
	}

	err := NewRPCChecker(map[string]HeadReader{"Mainnet": up, "Base": down, "Flare": down}).Ping(context.Background())
	if err == nil {
		t.Fatalf("expected failure")
	}
	msg := err.Error()
	if !strings.Contains(msg, "network Base") || !strings.Contains(msg, "network Flare") || strings.Contains(msg, "Mainnet") {
		t.Fatalf("unexpected error %q", msg)
	}
}
