// Package daemon wires packd's services together and runs them until shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/packd/internal/artifact"
	"git.home.luguber.info/inful/packd/internal/cache"
	"git.home.luguber.info/inful/packd/internal/config"
	"git.home.luguber.info/inful/packd/internal/coordinator"
	"git.home.luguber.info/inful/packd/internal/events"
	"git.home.luguber.info/inful/packd/internal/ledger"
	"git.home.luguber.info/inful/packd/internal/logfields"
	"git.home.luguber.info/inful/packd/internal/metrics"
	"git.home.luguber.info/inful/packd/internal/registry"
	"git.home.luguber.info/inful/packd/internal/resolve"
	"git.home.luguber.info/inful/packd/internal/retry"
	"git.home.luguber.info/inful/packd/internal/server/httpserver"
	"git.home.luguber.info/inful/packd/internal/storage"
	"git.home.luguber.info/inful/packd/internal/worker"
	"git.home.luguber.info/inful/packd/internal/workspace"
)

// Options carries optional overrides, mainly for tests.
type Options struct {
	Logger *slog.Logger
	// Executor replaces the process executor.
	Executor worker.Executor
	// Registry replaces the Prometheus registry. When nil a fresh registry
	// with Go and process collectors is used.
	Registry *prom.Registry
}

// Daemon owns every long-lived service of a packd server.
type Daemon struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	startTime  time.Time

	headers     *artifact.Headers
	cache       *cache.Cache
	store       storage.ObjectStore
	workspaces  *workspace.Manager
	resolver    *resolve.Resolver
	coordinator *coordinator.Coordinator
	ledger      *ledger.Store
	nats        *events.NATSEmitter
	http        *httpserver.Server
	scheduler   *Scheduler
	watcher     *ConfigWatcher
}

// New builds a daemon from cfg. configPath, when non-empty and present, is
// watched for header changes.
func New(ctx context.Context, cfg *config.Config, configPath string, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{cfg: cfg, configPath: configPath, logger: logger, startTime: time.Now()}

	reg := opts.Registry
	if reg == nil {
		reg = prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	recorder := metrics.NewPrometheusRecorder(reg)

	d.headers = artifact.NewHeaders(cfg.Response.Headers)
	d.workspaces = workspace.NewManager(cfg.Build.TmpDir)

	if err := d.initCache(); err != nil {
		return nil, err
	}

	rc := cfg.Registry
	client := registry.NewClient(rc.URL,
		registry.WithHTTPClient(&http.Client{Timeout: rc.TimeoutDuration()}),
		registry.WithRetryPolicy(retry.FromConfig(rc.Retry)),
		registry.WithRecorder(recorder),
		registry.WithLogger(logger))
	d.resolver = resolve.New(client, resolve.WithConcurrency(rc.Concurrency), resolve.WithLogger(logger))

	executor := opts.Executor
	if executor == nil {
		pe, err := worker.NewProcessExecutor(WorkerCommand(cfg), logger)
		if err != nil {
			_ = d.closeStores()
			return nil, err
		}
		executor = pe
	}

	emitter, err := d.initEvents(ctx)
	if err != nil {
		_ = d.closeStores()
		return nil, err
	}

	coordOpts := []coordinator.Option{
		coordinator.WithTimeout(cfg.Build.TimeoutDuration()),
		coordinator.WithMaxConcurrent(cfg.Build.MaxConcurrent),
		coordinator.WithRecorder(recorder),
		coordinator.WithEmitter(emitter),
		coordinator.WithLogger(logger),
	}
	deps := httpserver.Dependencies{
		Resolver:       d.resolver,
		Cache:          d.cache,
		Headers:        d.headers,
		Runtime:        d,
		MetricsHandler: metrics.HTTPHandler(reg),
	}
	if cfg.Ledger.Path != "" {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			_ = d.closeStores()
			return nil, fmt.Errorf("open build ledger: %w", err)
		}
		d.ledger = l
		coordOpts = append(coordOpts, coordinator.WithLedger(l))
		deps.History = l
	}
	d.coordinator = coordinator.New(d.cache, executor, coordOpts...)
	deps.Obtainer = d.coordinator

	d.http, err = httpserver.New(cfg, deps, logger)
	if err != nil {
		_ = d.closeStores()
		return nil, err
	}

	d.scheduler, err = NewScheduler(logger)
	if err != nil {
		_ = d.closeStores()
		return nil, err
	}
	if err := d.scheduleMaintenance(); err != nil {
		_ = d.scheduler.Stop()
		_ = d.closeStores()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) initCache() error {
	opts := []cache.Option{cache.WithMaxEntries(d.cfg.Cache.MaxEntries), cache.WithLogger(d.logger)}
	if d.cfg.Cache.Dir != "" {
		store, err := storage.NewFSStore(d.cfg.Cache.Dir)
		if err != nil {
			return fmt.Errorf("open persistent cache: %w", err)
		}
		d.store = store
		opts = append(opts, cache.WithStore(store))
	}
	d.cache = cache.New(opts...)
	return nil
}

func (d *Daemon) initEvents(ctx context.Context) (events.Emitter, error) {
	emitters := events.Multi{events.NewLogEmitter(d.logger)}
	ec := d.cfg.Events
	if ec.NATSURL == "" {
		return emitters, nil
	}
	n, err := events.NewNATSEmitter(ctx, ec.NATSURL, ec.SubjectPrefix, ec.Stream, d.logger)
	if err != nil {
		return nil, err
	}
	d.nats = n
	return append(emitters, n), nil
}

func (d *Daemon) scheduleMaintenance() error {
	// A scratch directory older than two build timeouts belongs to a worker
	// that was killed before it could clean up.
	staleAfter := 2 * d.cfg.Build.TimeoutDuration()
	interval := d.cfg.Maintenance.IntervalDuration()

	err := d.scheduler.ScheduleEvery(JobSweepWorkspaces, interval, func(context.Context) error {
		n, err := d.workspaces.Sweep(staleAfter)
		if n > 0 {
			d.logger.Info("Removed stale build workspaces", slog.Int("count", n))
		}
		return err
	})
	if err != nil {
		return err
	}

	if maxAge := d.cfg.Cache.MaxAgeDuration(); d.store != nil && maxAge > 0 {
		return d.scheduler.ScheduleEvery(JobPruneCache, interval, func(ctx context.Context) error {
			n, err := d.cache.Prune(ctx, maxAge)
			if n > 0 {
				d.logger.Info("Pruned persistent cache", slog.Int("count", n))
			}
			return err
		})
	}
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		_ = d.scheduler.Stop()
		_ = d.closeStores()
		return err
	}
	<-ctx.Done()
	d.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	return d.Stop(shutdownCtx)
}

// Start launches the HTTP servers, the scheduler and the config watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.http.Start(ctx); err != nil {
		return err
	}
	d.scheduler.Start()

	if d.configPath != "" {
		if _, err := os.Stat(d.configPath); err == nil {
			d.startWatcher(ctx)
		}
	}

	d.logger.Info("packd started",
		slog.String("registry", d.cfg.Registry.URL),
		slog.String("tmp_dir", d.cfg.Build.TmpDir),
		slog.String("build_timeout", d.cfg.Build.Timeout))
	return nil
}

func (d *Daemon) startWatcher(ctx context.Context) {
	w, err := NewConfigWatcher(d.configPath, d.ReloadConfig, d.logger)
	if err != nil {
		d.logger.Warn("Config watcher unavailable", logfields.Error(err))
		return
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		d.logger.Warn("Config watcher unavailable", logfields.Error(err))
		return
	}
	d.watcher = w
}

// Stop shuts everything down. Builds still in flight are abandoned; their
// scratch directories are swept on a later run.
func (d *Daemon) Stop(ctx context.Context) error {
	var errs []error
	if d.watcher != nil {
		errs = append(errs, d.watcher.Stop())
	}
	errs = append(errs, d.http.Stop(ctx))
	errs = append(errs, d.scheduler.Stop())
	errs = append(errs, d.closeStores())
	return errors.Join(errs...)
}

func (d *Daemon) closeStores() error {
	var errs []error
	if d.nats != nil {
		errs = append(errs, d.nats.Close())
	}
	if d.ledger != nil {
		errs = append(errs, d.ledger.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// ReloadConfig applies the reloadable parts of cfg. Only the static response
// headers change at runtime; other differences are reported and ignored.
func (d *Daemon) ReloadConfig(cfg *config.Config) {
	d.headers.Update(cfg.Response.Headers)
	if cfg.Server != d.cfg.Server || cfg.Registry.URL != d.cfg.Registry.URL || cfg.Build.TmpDir != d.cfg.Build.TmpDir {
		d.logger.Warn("Configuration changes beyond response headers require a restart")
	}
	d.logger.Info("Response headers reloaded", slog.Int("count", len(cfg.Response.Headers)))
}

// Headers returns the live response header set.
func (d *Daemon) Headers() *artifact.Headers { return d.headers }

// HTTPServer exposes the HTTP wiring.
func (d *Daemon) HTTPServer() *httpserver.Server { return d.http }

// StartTime implements handlers.Runtime.
func (d *Daemon) StartTime() time.Time { return d.startTime }

// CachedBundles implements handlers.Runtime.
func (d *Daemon) CachedBundles() int { return d.cache.Len() }

// Ready reports whether scratch workspaces can be created.
func (d *Daemon) Ready() error {
	dir := d.workspaces.BaseDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("tmp dir unavailable: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("tmp dir not writable: %w", err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return nil
}
