package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// --- ANSI color codes ---
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

const shutdownTimeout = 10 * time.Second

type HandlerFunc func(http.ResponseWriter, *http.Request)

type Router struct {
	mux   chi.Router
	color bool
	paths map[string]bool
}

// Option configures a Router.
type Option func(*Router)

// WithColor logs requests as colored console lines instead of slog records.
func WithColor() Option {
	return func(r *Router) { r.color = true }
}

func New(opts ...Option) *Router {
	r := &Router{
		mux:   chi.NewRouter(),
		paths: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mux.Use(middleware.RequestID)
	r.mux.Use(r.logRequests)
	r.mux.Use(middleware.Recoverer)
	return r
}

// logRequests records method, path, status and duration of every request.
func (r *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, req)
		duration := time.Since(start)

		if r.color {
			log.Printf("%s[%s]%s %s%s%s %s %s%d%s %s(%v)%s",
				colorCyan, start.Format("2006-01-02 15:04:05"), colorReset,
				methodColor(req.Method), req.Method, colorReset,
				req.URL.Path,
				statusColor(lrw.statusCode), lrw.statusCode, colorReset,
				colorBlue, duration, colorReset,
			)
			return
		}
		slog.InfoContext(req.Context(), "http request",
			"request_id", middleware.GetReqID(req.Context()),
			"method", req.Method,
			"path", req.URL.Path,
			"status", lrw.statusCode,
			"duration", duration,
		)
	})
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	r.mux.MethodFunc(method, path, http.HandlerFunc(handler))
	r.paths[path] = true
}

func (r *Router) GET(path string, handler HandlerFunc)  { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc) { r.register(http.MethodPost, path, handler) }

// Handle mounts h for every method on path, e.g. /metrics.
func (r *Router) Handle(path string, h http.Handler) {
	r.mux.Handle(path, h)
	r.paths[path] = true
}

// Paths lists the registered patterns.
func (r *Router) Paths() map[string]bool {
	return r.paths
}

// Param returns a path parameter such as {id}.
func Param(req *http.Request, name string) string {
	return chi.URLParam(req, name)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// --- Start server ---

// Start serves until ctx ends, then shuts down gracefully.
func (r *Router) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("router: serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("router: shutdown: %w", err)
	}
	slog.Info("server stopped", "addr", addr)
	return nil
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// --- Color helpers ---
func statusColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorGreen
	case code >= 300 && code < 400:
		return colorCyan
	case code >= 400 && code < 500:
		return colorYellow
	default:
		return colorRed
	}
}

func methodColor(method string) string {
	switch method {
	case http.MethodGet:
		return colorGreen
	case http.MethodPost:
		return colorBlue
	case http.MethodPut:
		return colorYellow
	case http.MethodPatch:
		return colorYellow
	case http.MethodDelete:
		return colorRed
	default:
		return colorCyan
	}
}
