// Package http exposes the ledger commands as a JSON REST service.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/log"
	"ledger/internal/server"
)

// Runner executes ledger commands.
type Runner interface {
	Run(ctx context.Context, cmd server.Command, p server.Params) (server.Response, error)
}

// Config holds the service settings.
type Config struct {
	Addr string
	// RateLimit is the number of mutating requests allowed per client
	// and minute. Zero disables the limit.
	RateLimit int
	Username  string
	Password  string

	CacheSize int
	CacheTTL  time.Duration

	Logger *log.Logger
}

type Server struct {
	http.Server
	runner      Runner
	cfg         Config
	logger      *log.Logger
	sl          *log.StructuredLogger
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	listings     *cache.Loader[server.Response]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(cfg Config, runner Runner) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := cfg.Logger.WithComponent(log.ComponentHTTP)

	lru := cache.NewLRUCache[server.Response](cfg.CacheSize, cfg.CacheTTL)
	s := &Server{
		runner:       runner,
		cfg:          cfg,
		logger:       logger,
		sl:           log.NewStructuredLogger(logger),
		metrics:      &securityMetrics{},
		listings:     cache.NewLoader[server.Response](lru),
		cacheManager: cache.NewManager(cfg.Logger),
	}
	s.cacheManager.Register(lru)
	s.cacheManager.StartCleanup(10 * time.Minute)
	if cfg.RateLimit > 0 {
		s.rateLimiter = newRateLimiter(cfg.RateLimit, time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	api := func(h http.HandlerFunc) http.Handler { return s.withAPI(h) }
	mux.Handle("GET /periods", api(s.handlePeriods))
	mux.Handle("GET /periods/{period}", api(s.handleList))
	mux.Handle("POST /periods/{period}", api(s.handleAdd))
	mux.Handle("GET /periods/{period}/{table}/{eid}", api(s.handleGet))
	mux.Handle("PATCH /periods/{period}/{table}/{eid}", api(s.handleUpdate))
	mux.Handle("DELETE /periods/{period}/{table}/{eid}", api(s.handleRemove))
	mux.Handle("POST /copy", api(s.handleCopy))

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withRequestContext(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops background routines and the HTTP server, then logs the
// security counters collected over the server's lifetime.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		defer func() { s.logger.Info("Security summary", s.metrics.logArgs()...) }()
		s.cacheManager.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady succeeds once the store answers a periods query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := s.runner.Run(ctx, server.CmdPeriods, server.Params{}); err != nil {
		s.sl.LogError(ctx, "Readiness check failed", err, log.OpRead, nil)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
