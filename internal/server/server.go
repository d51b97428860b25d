// Package server exposes the subsystem over HTTP: the execution callback
// the platform posts tool invocations to, the call-started trigger, and the
// administrative tool CRUD surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/voxkit/voxkit/internal/metrics"
	"github.com/voxkit/voxkit/pkg/callstart"
	"github.com/voxkit/voxkit/pkg/execution"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/toolstore"
	"github.com/voxkit/voxkit/pkg/variables"
)

// Lifecycle is the tool lifecycle surface the server exposes. Satisfied by
// *lifecycle.Manager.
type Lifecycle interface {
	Create(ctx context.Context, orgID string, cfg toolconfig.Config) (*toolstore.Tool, error)
	Update(ctx context.Context, orgID, toolID string, cfg toolconfig.Config) (*toolstore.Tool, error)
	Delete(ctx context.Context, orgID, toolID string) error
	Get(ctx context.Context, orgID, toolID string) (*toolstore.Tool, error)
	List(ctx context.Context, orgID string) ([]*toolstore.Tool, error)
	Attach(ctx context.Context, orgID, agentID, toolID string) error
	Detach(ctx context.Context, orgID, agentID, toolID string) error
}

// Executor runs a single tool invocation. Satisfied by *execution.Engine.
type Executor interface {
	Execute(ctx context.Context, toolID string, aiParams map[string]interface{}, vars variables.Context) *execution.Result
}

// CallStarter runs the on-call-start orchestrator. Satisfied by
// *callstart.Orchestrator.
type CallStarter interface {
	Run(ctx context.Context, info callstart.CallInfo)
}

// Options configures the HTTP server.
type Options struct {
	Host               string
	Port               int
	RateLimitPerMinute int
}

// Server is the subsystem's HTTP server.
type Server struct {
	options     Options
	lifecycle   Lifecycle
	executor    Executor
	callStarter CallStarter
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	httpServer  *http.Server
	rateLimiter *rateLimiter
	startTime   time.Time

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// NewServer creates the HTTP server.
func NewServer(options Options, lc Lifecycle, executor Executor, callStarter CallStarter, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if options.Port == 0 {
		options.Port = 3100
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 300
	}

	return &Server{
		options:     options,
		lifecycle:   lc,
		executor:    executor,
		callStarter: callStarter,
		metrics:     m,
		logger:      logger,
		rateLimiter: newRateLimiter(options.RateLimitPerMinute),
		startTime:   time.Now(),
	}
}

// Router builds the full route tree. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.trackInFlight)
	r.Use(s.requestID)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(s.rateLimit).Post("/tools/{toolID}/execute", s.handleExecute)
		r.Post("/calls/started", s.handleCallStarted)

		r.Post("/tools", s.handleCreateTool)
		r.Get("/tools", s.handleListTools)
		r.Get("/tools/{toolID}", s.handleGetTool)
		r.Patch("/tools/{toolID}", s.handleUpdateTool)
		r.Delete("/tools/{toolID}", s.handleDeleteTool)

		r.Post("/agents/{agentID}/tools/{toolID}", s.handleAttach)
		r.Delete("/agents/{agentID}/tools/{toolID}", s.handleDetach)
	})

	return r
}

// Start runs the server until it is stopped. Blocks.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// trackInFlight refuses new work during shutdown and counts requests so
// Stop can drain them.
func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		shuttingDown := s.isShuttingDown
		s.shutdownMu.RUnlock()
		if shuttingDown {
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()
		next.ServeHTTP(w, r)
	})
}

// requestID tags every request with a short correlation id.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := gonanoid.New(12)
		if err != nil {
			id = "unknown"
		}
		w.Header().Set("X-Request-ID", id)

		logger := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			retryAfter := s.rateLimiter.RetryAfter(ip)
			s.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retry_after", retryAfter).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
