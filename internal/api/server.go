package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/pipeline"
)

const maxRequestBytes = 1 << 16

// Crawler runs one catalog search. *app.App satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, query string, opts pipeline.RunOptions) (crawler.CrawlResult, error)
}

// Reporter delivers a finished result to the configured report sinks.
type Reporter interface {
	Report(ctx context.Context, result crawler.CrawlResult) error
}

// Server wires HTTP handlers to the crawl pipeline.
type Server struct {
	router   chi.Router
	crawler  Crawler
	reporter Reporter
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. reporter may be
// nil, in which case results are only returned to the caller.
func NewServer(c Crawler, reporter Reporter, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		crawler:  c,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger.Named("api"),
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawls", s.createCrawl)
	})

	s.router = r
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.crawler == nil {
		writeError(w, http.StatusServiceUnavailable, "crawler not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	Query    string `json:"query"`
	MaxLinks *int   `json:"max_links"`
}

type crawlResponse struct {
	RunID    string                  `json:"run_id"`
	Query    string                  `json:"query"`
	Backend  crawler.Backend         `json:"backend"`
	Records  []crawler.ProductRecord `json:"records"`
	Failures []crawler.TaskFailure   `json:"failures,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

func (s *Server) createCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	opts := pipeline.RunOptions{}
	if req.MaxLinks != nil {
		if *req.MaxLinks < 0 {
			writeError(w, http.StatusBadRequest, "max_links must be >= 0")
			return
		}
		opts.MaxLinks = *req.MaxLinks
	}

	result, err := s.crawler.Crawl(r.Context(), req.Query, opts)
	resp := crawlResponse{
		RunID:    result.RunID,
		Query:    result.Query,
		Backend:  result.Backend,
		Records:  result.Records,
		Failures: result.Failures,
	}
	if resp.Records == nil {
		resp.Records = []crawler.ProductRecord{}
	}
	switch {
	case err == nil:
	case errors.Is(err, crawler.ErrNoResults):
		resp.Message = "no results"
		writeJSON(w, http.StatusOK, resp)
		return
	case errors.Is(err, crawler.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query required")
		return
	default:
		s.logger.Warn("crawl failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if s.reporter != nil {
		if rerr := s.reporter.Report(r.Context(), result); rerr != nil {
			s.logger.Warn("report delivery failed", zap.String("run_id", result.RunID), zap.Error(rerr))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type requestIDKey struct{}

// RequestIDFromContext returns the ID assigned by the request ID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
