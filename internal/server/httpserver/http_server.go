// Package httpserver runs packd's bundle and admin listeners.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/netutil"

	"git.home.luguber.info/inful/packd/internal/config"
	derrors "git.home.luguber.info/inful/packd/internal/foundation/errors"
	handlers "git.home.luguber.info/inful/packd/internal/server/handlers"
	smw "git.home.luguber.info/inful/packd/internal/server/middleware"
)

// Server manages the bundle and admin HTTP servers.
type Server struct {
	cfg          *config.Config
	deps         Dependencies
	logger       *slog.Logger
	errorAdapter *derrors.HTTPErrorAdapter

	bundleServer *http.Server
	adminServer  *http.Server
	bundleAddr   net.Addr
	adminAddr    net.Addr

	bundleHandlers     *handlers.BundleHandlers
	cacheHandlers      *handlers.CacheHandlers
	monitoringHandlers *handlers.MonitoringHandlers
	landing            *handlers.LandingHandler

	mchain func(http.Handler) http.Handler
}

// New constructs the HTTP server wiring.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	landing, err := handlers.NewLandingHandler()
	if err != nil {
		return nil, fmt.Errorf("render landing page: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		deps:         deps,
		logger:       logger,
		errorAdapter: derrors.NewHTTPErrorAdapter(logger),
		landing:      landing,
	}
	s.bundleHandlers = handlers.NewBundleHandlers(deps.Resolver, deps.Obtainer, deps.Headers, logger)
	s.cacheHandlers = handlers.NewCacheHandlers(deps.Cache)
	s.monitoringHandlers = handlers.NewMonitoringHandlers(deps.Runtime, deps.History, cfg.Ledger.Recent, logger)
	s.mchain = smw.Chain(logger, s.errorAdapter)
	return s, nil
}

// BundleHandler returns the routed handler for the bundle listener.
func (s *Server) BundleHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.landing)
	mux.HandleFunc("GET /favicon.ico", s.bundleHandlers.HandleFavicon)
	mux.HandleFunc("GET /_cache", s.cacheHandlers.HandleCacheReport)
	mux.HandleFunc("/", s.bundleHandlers.HandleBundle)
	return s.mchain(mux)
}

// AdminHandler returns the routed handler for the admin listener.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("/healthz", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("/ready", s.monitoringHandlers.HandleReadiness)
	mux.HandleFunc("/readyz", s.monitoringHandlers.HandleReadiness)
	mux.HandleFunc("/_builds", s.monitoringHandlers.HandleBuilds)
	if s.deps.MetricsHandler != nil {
		mux.Handle(s.cfg.Metrics.Path, s.deps.MetricsHandler)
	}
	return s.mchain(mux)
}

// Start binds both listeners and starts serving. Both ports are bound
// before either server starts so a port conflict fails startup as a whole.
func (s *Server) Start(ctx context.Context) error {
	sc := s.cfg.Server
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "bundle", port: sc.Port},
		{name: "admin", port: sc.AdminPort},
	}
	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		addr := net.JoinHostPort(sc.Host, strconv.Itoa(binds[i].port))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return derrors.WrapError(errors.Join(bindErrs...), derrors.CategoryRuntime, "http startup failed").Build()
	}

	bundleLn := binds[0].ln
	if sc.MaxConnections > 0 {
		bundleLn = netutil.LimitListener(bundleLn, sc.MaxConnections)
	}
	s.bundleAddr = bundleLn.Addr()
	s.adminAddr = binds[1].ln.Addr()

	s.bundleServer = &http.Server{
		Handler:           s.BundleHandler(),
		ReadTimeout:       sc.ReadTimeoutDuration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      sc.WriteTimeoutDuration(),
		IdleTimeout:       120 * time.Second,
	}
	s.adminServer = &http.Server{
		Handler:           s.AdminHandler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.serve("bundle", s.bundleServer, bundleLn)
	s.serve("admin", s.adminServer, binds[1].ln)

	s.logger.Info("HTTP servers started",
		slog.String("bundle_addr", s.bundleAddr.String()),
		slog.String("admin_addr", s.adminAddr.String()),
		slog.Int("max_connections", sc.MaxConnections))
	return nil
}

// BundleAddr returns the bound bundle listener address once started.
func (s *Server) BundleAddr() net.Addr { return s.bundleAddr }

// AdminAddr returns the bound admin listener address once started.
func (s *Server) AdminAddr() net.Addr { return s.adminAddr }

// Stop gracefully shuts down both servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.bundleServer != nil {
		if err := s.bundleServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("bundle server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("HTTP servers stopped")
	return nil
}

func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(kind+" server error", slog.String("error", err.Error()))
		}
	}()
}
