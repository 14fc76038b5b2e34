// Package httpapi serves the public stats API, health, metrics and optional pprof.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"bigbrother/internal/stats"
	"bigbrother/pkg/logx"
)

const pprofPrefix = "/debug/pprof/"

// Sources feed the handlers. Any of them may be nil.
type Sources struct {
	Stats   func(ctx context.Context) (stats.Snapshot, error)
	Health  func() any
	Metrics http.Handler
}

// NewHandler builds the mux. pprof endpoints are mounted only when withPprof is set.
func NewHandler(src Sources, withPprof bool, log logx.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, World!"})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		if src.Stats == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stats unavailable"})
			return
		}
		snap, err := src.Stats(r.Context())
		if err != nil {
			log.Warn("stats request failed", logx.Err(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if src.Health != nil {
			body["supervisor"] = src.Health()
		}
		writeJSON(w, http.StatusOK, body)
	})

	if src.Metrics != nil {
		mux.Handle("GET /metrics", src.Metrics)
	}

	if withPprof {
		base := strings.TrimSuffix(pprofPrefix, "/")
		mux.HandleFunc(pprofPrefix, hpprof.Index)
		mux.HandleFunc(base+"/cmdline", hpprof.Cmdline)
		mux.HandleFunc(base+"/profile", hpprof.Profile)
		mux.HandleFunc(base+"/symbol", hpprof.Symbol)
		mux.HandleFunc(base+"/trace", hpprof.Trace)
	}

	return withCORS(mux)
}

// withCORS allows any origin; the stats API is public.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
