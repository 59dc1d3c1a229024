// Package server wires the indexer together: chain endpoints, scan loops,
// the sync engine, job dispatchers, and the HTTP read API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pnslabs/pns-indexer/internal/auth"
	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/chains/evm"
	"github.com/pnslabs/pns-indexer/internal/chains/solana"
	"github.com/pnslabs/pns-indexer/internal/config"
	"github.com/pnslabs/pns-indexer/internal/indexer"
	"github.com/pnslabs/pns-indexer/internal/middleware/logging"
	"github.com/pnslabs/pns-indexer/internal/middleware/ratelimit"
	"github.com/pnslabs/pns-indexer/internal/middleware/realip"
	"github.com/pnslabs/pns-indexer/internal/observability/metrics"
	registryDomain "github.com/pnslabs/pns-indexer/internal/registry/domain"
	registryTransport "github.com/pnslabs/pns-indexer/internal/registry/transport"
	"github.com/pnslabs/pns-indexer/internal/storage"
	"github.com/pnslabs/pns-indexer/internal/syncer"
)

// Server owns the indexer's long-running pieces and the HTTP surface.
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	evmClient   *evm.Client
	scanners    []*indexer.Scanner
	dispatchers []*syncer.Dispatcher
}

// New builds the full indexer from configuration: both chain endpoints, one
// scan loop and one dispatcher per chain, the sync service between them, and
// the read API on top of the store.
func New(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.ServiceName)

	registry, err := s.buildChains(ctx)
	if err != nil {
		return nil, err
	}

	syncSvc, err := syncer.New(syncer.Config{
		PrimaryChain: cfg.Chains.Primary,
		MirrorChain:  cfg.Chains.Mirror,
		Policy:       syncer.Policy(cfg.Sync.Policy),
	}, logger)
	if err != nil {
		return nil, err
	}

	readSvc := registryDomain.NewService(store, store, store)

	fetchCfg := indexer.FetchConfig{
		MaxChunk:   cfg.Fetcher.MaxChunk,
		MaxRetries: cfg.Fetcher.MaxRetries,
		BaseDelay:  time.Duration(cfg.Fetcher.BaseDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.Fetcher.MaxDelaySec) * time.Second,
		RPS:        cfg.Fetcher.RPS,
	}
	dispatchCfg := syncer.DispatchConfig{
		Interval:   time.Duration(cfg.Dispatch.IntervalSeconds) * time.Second,
		ClaimLimit: cfg.Dispatch.ClaimLimit,
		MaxRetries: cfg.Dispatch.MaxRetries,
		BaseDelay:  time.Duration(cfg.Dispatch.BaseDelaySec) * time.Second,
		MaxDelay:   time.Duration(cfg.Dispatch.MaxDelaySec) * time.Second,
		Lease:      time.Duration(cfg.Dispatch.LeaseSeconds) * time.Second,
	}

	for _, name := range registry.Names() {
		endpoint, _ := registry.Get(name)

		scanCfg := indexer.ScanConfig{
			BatchSize: cfg.Scanner.BatchSize,
			Interval:  time.Duration(cfg.Scanner.IntervalSeconds) * time.Second,
		}
		switch name {
		case chains.ChainPolygon:
			scanCfg.StartBlock = cfg.Chains.Polygon.StartBlock
		case chains.ChainSolana:
			scanCfg.StartBlock = cfg.Chains.Solana.StartSlot
		}

		fetcher := indexer.NewFetcher(endpoint.Source, name, fetchCfg, logger)
		scanner := indexer.NewScanner(endpoint, fetcher, store, syncSvc, scanCfg, logger)
		s.scanners = append(s.scanners, scanner)
		readSvc.WatchScanner(name, scanner)

		if endpoint.Submitter != nil {
			s.dispatchers = append(s.dispatchers,
				syncer.NewDispatcher(store, endpoint.Submitter, name, dispatchCfg, logger))
		}
	}

	s.setupMiddleware()
	s.setupRoutes(registryTransport.NewHandler(readSvc))

	return s, nil
}

// buildChains constructs and registers both chain endpoints.
func (s *Server) buildChains(ctx context.Context) (*chains.Registry, error) {
	registry := chains.NewRegistry()

	pcfg := s.cfg.Chains.Polygon
	evmClient, err := evm.Dial(ctx, pcfg.RPCURL, chains.ChainPolygon)
	if err != nil {
		return nil, err
	}
	s.evmClient = evmClient

	evmDecoder := evm.NewDecoder()
	polygon := &chains.Endpoint{
		Name:    chains.ChainPolygon,
		Source:  evmClient,
		Decoder: evmDecoder,
		Query: chains.LogQuery{
			Addresses: pcfg.Contracts,
			Topics:    evmDecoder.Topics(),
		},
	}
	if pcfg.RelayEndpoint != "" {
		polygon.Submitter = chains.NewRelaySubmitter(pcfg.RelayEndpoint, pcfg.RelayAPIKey,
			time.Duration(pcfg.RelayTimeoutSec)*time.Second)
	}
	registry.Register(polygon)

	scfg := s.cfg.Chains.Solana
	solClient, err := solana.New(scfg.RPCURL, scfg.ProgramID)
	if err != nil {
		return nil, err
	}

	sol := &chains.Endpoint{
		Name:    chains.ChainSolana,
		Source:  solClient,
		Decoder: solana.NewDecoder(),
		Records: solClient,
	}
	if scfg.RelayEndpoint != "" {
		sol.Submitter = chains.NewRelaySubmitter(scfg.RelayEndpoint, scfg.RelayAPIKey,
			time.Duration(scfg.RelayTimeoutSec)*time.Second)
	}
	registry.Register(sol)

	return registry, nil
}

// Run starts the scan loops and dispatchers and blocks until the context is
// canceled and they have all stopped.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sc := range s.scanners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.Run(ctx)
		}()
	}
	for _, d := range s.dispatchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run(ctx)
		}()
	}
	wg.Wait()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for the separate metrics
// listener.
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// Close releases chain connections.
func (s *Server) Close() {
	if s.evmClient != nil {
		s.evmClient.Close()
	}
}

func (s *Server) setupMiddleware() {
	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Rate limiting (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	// 3. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 4. CORS: the read API is public
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes(handler *registryTransport.Handler) {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleHealth)

	// Auth middleware for operator routes
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(auth.NewKeyset(s.cfg.Auth.APIKeyHashes), writeError))
		}
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Read operations - no auth required
		handler.RegisterReadRoutes(r)

		// Operator job surface - auth required
		r.Group(func(r chi.Router) {
			requireAuth(r)
			handler.RegisterAdminRoutes(r)
		})
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
