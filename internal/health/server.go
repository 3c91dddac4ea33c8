package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/blueogin/trade-data-collector/internal/metrics"
)

// Checker holds the probes reported by /healthz. Nil probes are omitted.
type Checker struct {
	ManifestPing func(ctx context.Context) error
	RPCPing      func(ctx context.Context) error
	// Phase reports the collector phase; "failed" marks the process unhealthy.
	Phase func() string
}

// Handler serves /healthz and, when withMetrics is set, /metrics.
func Handler(checker Checker, withMetrics bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		probe := func(name string, ping func(context.Context) error) {
			if ping == nil {
				return
			}
			if err := ping(ctx); err != nil {
				status[name] = "fail"
				code = http.StatusServiceUnavailable
				return
			}
			status[name] = "ok"
		}
		probe("manifest", checker.ManifestPing)
		probe("rpc", checker.RPCPing)

		if checker.Phase != nil {
			phase := checker.Phase()
			status["collector"] = phase
			if phase == "failed" {
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
	if withMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

// Serve starts the handler on addr in the background.
func Serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
