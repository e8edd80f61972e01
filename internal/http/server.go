package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"finassist/internal/core"
	applog "finassist/internal/log"
	"finassist/internal/ports"
)

const (
	defaultDetectionTimeout = 30 * time.Second
	readinessTimeout        = 2 * time.Second
)

var tracer = otel.Tracer("finassist/internal/http")

// AnomalyService is the detection API the handlers call.
type AnomalyService interface {
	DetectAnomaliesForCategory(ctx context.Context, userID, categoryID string) (core.CategoryResult, error)
	DetectAnomaliesForUser(ctx context.Context, userID string) ([]core.Anomaly, error)
	CheckTransactionForAnomaly(ctx context.Context, userID string, tx core.Transaction) (*core.CheckResult, error)
}

type Server struct {
	http.Server
	svc         AnomalyService
	logger      *applog.Logger
	rateLimiter *rateLimiter
	timeout     time.Duration
	gatherer    prometheus.Gatherer
	checks      map[string]ports.HealthChecker

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithDetectionTimeout bounds the time a single request may spend detecting.
func WithDetectionTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithReadinessCheck adds a dependency probed by /readyz.
func WithReadinessCheck(name string, hc ports.HealthChecker) Option {
	return func(s *Server) { s.checks[name] = hc }
}

// WithGatherer selects the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) { s.logger = l.WithComponent(applog.ComponentHTTP) }
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, svc AnomalyService, opts ...Option) *Server {
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:         svc,
		rateLimiter: newRateLimiter(),
		timeout:     defaultDetectionTimeout,
		gatherer:    prometheus.DefaultGatherer,
		checks:      map[string]ports.HealthChecker{},
		logger: applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentHTTP,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}

	health := healthcheck.NewHandler()
	for name, hc := range s.checks {
		health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer cancel()
			return hc.Ping(ctx)
		}, readinessTimeout))
	}

	mux.HandleFunc("GET /healthz", health.LiveEndpoint)
	mux.HandleFunc("GET /readyz", health.ReadyEndpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /users/{userID}/anomalies", s.withRequestLogging(s.handleUserAnomalies))
	mux.HandleFunc("GET /users/{userID}/categories/{categoryID}/anomalies", s.withRequestLogging(s.handleCategoryAnomalies))
	mux.HandleFunc("POST /users/{userID}/transactions/check", s.withRequestLogging(s.handleCheckTransaction))

	return s
}

// withRequestLogging adds a request ID, rate limiting for writes, and request logging.
func (s *Server) withRequestLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := clientIPFromRequest(r)

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.Pattern)
		defer span.End()
		span.SetAttributes(attribute.String("http.request_id", requestID))

		logger := s.logger.With(applog.FieldRequestID, requestID)
		ctx = context.WithValue(ctx, applog.LoggerContextKey, logger)
		r = r.WithContext(ctx)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded", applog.FieldClientIP, clientIP, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
		applog.NewStructuredLogger(logger).LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
