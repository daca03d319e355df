// Package httpapi serves the catalog over a JSON HTTP API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phuslu/log"

	"github.com/dshills/filesense/internal/app"
)

// NewRouter creates the HTTP router for a
func NewRouter(a *app.App) http.Handler {
	h := &handler{app: a, logger: a.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(a.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/index", h.index)
		r.Post("/index/pause", h.pause)
		r.Post("/index/resume", h.resume)
		r.Post("/index/cancel", h.cancel)
		r.Get("/index/status", h.status)

		r.Get("/search", h.search)
		r.Get("/suggest", h.suggest)
		r.Get("/stats", h.stats)

		r.Post("/cleanup", h.cleanup)
		r.Post("/rebuild", h.rebuild)

		r.Route("/files/{id}", func(r chi.Router) {
			r.Get("/", h.getFile)
			r.Patch("/", h.updateFile)
			r.Delete("/", h.deleteFile)
		})
	})

	return r
}

// requestLogger logs one line per request
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

// CORS adds CORS headers to allow cross-origin requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
