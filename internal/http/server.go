// Package http exposes the bill engine as a JSON API under /api/v1.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bollette/internal/core"
	"bollette/internal/log"
	"bollette/internal/metrics"
	"bollette/internal/middleware/ratelimit"
	"bollette/internal/middleware/security"
)

// BillAPI is the use-case surface the handlers call.
type BillAPI interface {
	CreateBill(ctx context.Context, ownerID string, in core.BillInput) (core.Bill, error)
	GetBill(ctx context.Context, ownerID, id string) (core.Bill, error)
	UpdateBill(ctx context.Context, ownerID, id string, patch core.BillPatch) (core.Bill, error)
	DeleteBill(ctx context.Context, ownerID, id string) error
	ListBills(ctx context.Context, ownerID string, p core.PageParams) (core.Page[core.Bill], error)
	GetSummary(ctx context.Context, ownerID string, offset *core.Offset, dueSoonDays int) (core.Summary, error)
	GetTotalAmount(ctx context.Context, ownerID string, offset *core.Offset) (core.Money, error)
	GetBucket(ctx context.Context, bucket core.Bucket, ownerID string, p core.PageParams, offset *core.Offset, dueSoonDays int) (core.BucketPage, error)
	RecordPayment(ctx context.Context, ownerID, billID string, in core.PaymentInput) (core.Payment, error)
	CreateTransactionFromBill(ctx context.Context, ownerID, billID string, in core.PaymentInput) (core.PaymentResult, error)
	ListPayments(ctx context.Context, ownerID, billID string, from, to core.Date) ([]core.Payment, error)
	Occurrences(ctx context.Context, ownerID, billID string, offset *core.Offset) ([]core.Occurrence, error)
	CreateCategory(ctx context.Context, ownerID string, c core.Category) (core.Category, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server. The zero value is usable.
type Options struct {
	RateLimit ratelimit.Config
	Logger    *log.Logger
}

// Server is the HTTP API server.
type Server struct {
	http.Server
	bills    BillAPI
	ready    Pinger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, bills BillAPI, ready Pinger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.ForComponent(log.ComponentHTTP)
	}

	s := &Server{
		bills:    bills,
		ready:    ready,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		logger:   logger,
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(withRequestID)
	r.Use(log.RequestIDMiddleware(requestIDFromRequest))
	r.Use(s.withAccessLog)
	r.Use(security.Headers(security.APIHeadersConfig()))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rejectSuspicious)
		r.Use(s.limiter.Middleware(s.detector.ClientIP, writeRateLimited,
			http.MethodPost, http.MethodPatch, http.MethodDelete))
		r.Use(requireOwner)

		r.Route("/bills", func(r chi.Router) {
			r.Post("/", s.handleCreateBill)
			r.Get("/", s.handleListBills)
			r.Get("/summary", s.handleSummary)
			r.Get("/total", s.handleTotal)
			r.Get("/buckets/{bucket}", s.handleBucket)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBill)
				r.Patch("/", s.handleUpdateBill)
				r.Delete("/", s.handleDeleteBill)
				r.Post("/payments", s.handleRecordPayment)
				r.Get("/payments", s.handleListPayments)
				r.Post("/pay", s.handlePayBill)
				r.Get("/occurrences", s.handleOccurrences)
			})
		})

		r.Post("/categories", s.handleCreateCategory)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

// Shutdown stops accepting requests and releases background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withAccessLog logs every completed request and records its latency
// under the matched route pattern.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := s.detector.ClientIP(r)
		log.LogHTTPStart(r.Context(), r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		log.LogHTTPEnd(r.Context(), r, route, rw.statusCode, duration.Milliseconds(), clientIP)
		metrics.ObserveHTTP(r.Method, route, rw.statusCode, duration)
	})
}

func (s *Server) rejectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := s.detector.Suspicious(r); reason != "" {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request rejected",
				log.FieldClientIP, s.detector.ClientIP(r), "reason", reason)
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad request"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
