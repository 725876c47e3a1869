// Package health serves the /healthz endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker holds the probes reported by /healthz. Nil probes are skipped.
type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
	// Cursors reports the last committed block per adapter.
	Cursors func(ctx context.Context) (map[string]uint64, error)
}

// Handler builds the /healthz handler.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]any{"status": "ok"}
		code := http.StatusOK
		probe := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				status[name] = "fail"
				code = http.StatusServiceUnavailable
				return
			}
			status[name] = "ok"
		}
		probe("db", checker.DBPing)
		probe("rpc", checker.RPCPing)

		if checker.Cursors != nil {
			if cursors, err := checker.Cursors(ctx); err == nil {
				status["cursors"] = cursors
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}

// Serve starts a server exposing /healthz plus any extra handlers, e.g. /metrics.
func Serve(addr string, checker Checker, extra map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/healthz", Handler(checker))
	for path, h := range extra {
		mux.Handle(path, h)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
