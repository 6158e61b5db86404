package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/logging"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// Options configures the HTTP server.
type Options struct {
	Bind           string
	Port           int
	AllowedOrigins []string // empty keeps the API same-origin only
	Logger         *log.Logger
}

// NewServer creates the HTTP server for the transcript API.
// pipe may be nil, in which case POST /api/transcripts only serves cache hits.
func NewServer(db *sql.DB, svc *cache.Service, pipe Computer, opts Options) *http.Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	h := NewHandlers(db, svc, pipe)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Bind, opts.Port),
		Handler:           NewRouter(h, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter wires the API routes and middleware.
func NewRouter(h *Handlers, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(opts.AllowedOrigins)))
	}
	r.Use(securityHeaders)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/stats", h.HandleStats)

		r.Route("/transcripts", func(r chi.Router) {
			r.Get("/", h.HandleList)
			// JSON only, so a cross-site form post cannot start a transcription.
			r.With(
				chimw.AllowContentType("application/json"),
				chimw.RequestSize(maxBodyBytes),
			).Post("/", h.HandleProcess)
			r.Get("/{key}", h.HandleGet)
			r.Get("/{key}/download", h.HandleDownload)
			r.Delete("/{key}", h.HandleForget)
		})
	})

	return r
}

// corsOptions allows the given origins. Credentials are only allowed when no
// wildcard is configured. Only called with a non-empty list.
func corsOptions(allowedOrigins []string) cors.Options {
	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request. Successful health checks are not logged.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if r.URL.Path == "/api/health" && status < 400 {
				return
			}
			fields := []any{"method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start)}
			if status >= 500 {
				logger.Error("request", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *log.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("podscribe API listening", "addr", "http://"+srv.Addr)
	if strings.HasPrefix(srv.Addr, "0.0.0.0:") || strings.HasPrefix(srv.Addr, ":") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		// Let in-flight transcriptions finish writing their responses.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
