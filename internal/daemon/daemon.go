package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kasumi-bot/kasumi/internal/config"
	"github.com/kasumi-bot/kasumi/internal/logger"
	"github.com/kasumi-bot/kasumi/internal/metrics"
	"github.com/kasumi-bot/kasumi/pkg/confdoc"
	"github.com/kasumi-bot/kasumi/pkg/dispatch"
	"github.com/kasumi-bot/kasumi/pkg/gateway"
	"github.com/kasumi-bot/kasumi/pkg/plugin"
	"github.com/kasumi-bot/kasumi/pkg/taskrunner"
	"github.com/robfig/cron/v3"
)

const (
	// How long Stop waits for in-flight handler tasks before the
	// runner is closed.
	shutdownGrace = 10 * time.Second

	// How long Stop waits for background goroutines.
	stopTimeout = 5 * time.Second

	// Settle window for plugin directory changes.
	watchDebounce = 500 * time.Millisecond
)

// Daemon represents the Kasumi daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	metrics    *metrics.Metrics
	runner     *taskrunner.Runner
	reader     *plugin.ManifestReader
	configs    *plugin.ConfigStore
	registry   *plugin.Registry
	extractor  *plugin.Extractor
	host       *plugin.Host
	controller *plugin.Controller
	categories *confdoc.Doc
	usage      *dispatch.UsageLog
	dispatcher *dispatch.Dispatcher

	// Services
	client        *gateway.Client
	watcher       *PluginWatcher
	scheduler     *cron.Cron
	metricsServer *http.Server

	// Internal
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes the daemon to management surfaces.
type Status struct {
	Running   bool          `json:"running"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Plugins   plugin.Status `json:"plugins"`
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initializeModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize modules: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeModules builds the module graph in dependency order.
func (d *Daemon) initializeModules() error {
	cfg := d.config
	zl := d.logger.GetZerolog()

	if err := prepareLayout(cfg); err != nil {
		return err
	}

	d.metrics = metrics.NewMetrics()
	d.runner = taskrunner.New(zl)
	d.logger.Info().Msg("Task runner initialized")

	d.reader = plugin.NewManifestReader(zl)
	d.configs = plugin.NewConfigStore(cfg.PluginConfigDir(), zl)
	d.registry = plugin.NewRegistry(cfg.Dirs.Plugins, d.reader, d.configs, zl)
	d.extractor = plugin.NewExtractor(zl)
	d.logger.Info().Str("dir", cfg.Dirs.Plugins).Msg("Plugin registry initialized")

	d.client = gateway.NewClient(cfg.Gateway.Host, cfg.Gateway.HTTPPort, cfg.Gateway.WSPort, zl)

	// The capability handed to plugins wraps the gateway call with
	// call metering.
	call := func(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
		d.metrics.GatewayCallsTotal.WithLabelValues(action).Inc()
		result, err := d.client.Call(ctx, action, params)
		if err != nil {
			d.metrics.GatewayCallErrorsTotal.Inc()
		}
		return result, err
	}

	d.host = plugin.NewHost(cfg.Dirs.Cache, call, zl)
	d.controller = plugin.NewController(d.registry, d.reader, d.extractor, d.host, cfg.Dirs.Cache, zl)
	d.logger.Info().Str("workspace", cfg.Dirs.Cache).Msg("Plugin host initialized")

	categories, err := confdoc.Open(cfg.CategoriesPath())
	if err != nil {
		return fmt.Errorf("failed to open group categories: %w", err)
	}
	d.categories = categories

	d.usage = dispatch.NewUsageLog(cfg.UsagePath())

	d.dispatcher = dispatch.New(dispatch.Config{
		Registry:    d.registry,
		Configs:     d.configs,
		Host:        d.host,
		Runner:      d.runner,
		Categories:  d.categories,
		Usage:       d.usage,
		Metrics:     d.metrics,
		Prefixes:    cfg.Prefixes,
		CategoryTTL: time.Duration(cfg.Categories.RefreshTTLMs) * time.Millisecond,
	}, zl)
	d.logger.Info().Strs("prefixes", cfg.Prefixes).Msg("Dispatcher initialized")

	watcher, err := NewPluginWatcher(cfg.Dirs.Plugins, watchDebounce, func() {
		d.rescanPlugins("watch")
	}, zl)
	if err != nil {
		return fmt.Errorf("failed to create plugin watcher: %w", err)
	}
	d.watcher = watcher

	d.scheduler = cron.New()
	if cfg.Rescan.Cron != "" {
		if _, err := d.scheduler.AddFunc(cfg.Rescan.Cron, func() {
			d.rescanPlugins("schedule")
		}); err != nil {
			return fmt.Errorf("failed to schedule rescan: %w", err)
		}
	}

	return nil
}

// prepareLayout creates the directory tree and seeds the group
// category document so every component finds its files in place.
func prepareLayout(cfg *config.Config) error {
	for _, dir := range []string{cfg.Dirs.Plugins, cfg.PluginConfigDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	categoriesPath := cfg.CategoriesPath()
	if _, err := os.Stat(categoriesPath); os.IsNotExist(err) {
		if err := os.WriteFile(categoriesPath, []byte("[]\n"), 0o644); err != nil {
			return fmt.Errorf("failed to seed %s: %w", categoriesPath, err)
		}
	}

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting Kasumi daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.controller.LoadAll(); err != nil {
		return fmt.Errorf("failed to load plugins: %w", err)
	}
	d.updatePluginGauges()
	d.logger.Info().Int("loaded", len(d.host.LoadedIDs())).Msg("Plugins loaded")

	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start plugin watcher: %w", err)
	}

	if d.config.Rescan.Cron != "" {
		d.scheduler.Start()
		d.logger.Info().Str("cron", d.config.Rescan.Cron).Msg("Rescan schedule started")
	}

	if d.config.Metrics.Enabled {
		d.startMetricsServer()
	}

	d.wg.Add(1)
	go d.runEventStream()

	d.logger.Info().Msg("Daemon started successfully")

	return nil
}

// startMetricsServer exposes the Prometheus endpoint.
func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())

	d.metricsServer = &http.Server{Addr: d.config.Metrics.Addr, Handler: mux}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info().Str("addr", d.config.Metrics.Addr).Msg("Metrics server started")
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// runEventStream consumes the gateway event stream and feeds the
// dispatcher. Events are dispatched in arrival order; the stream is
// not redialed on failure.
func (d *Daemon) runEventStream() {
	defer d.wg.Done()

	if err := d.client.Listen(d.ctx, d.dispatcher.Dispatch); err != nil {
		if d.ctx.Err() != nil {
			return
		}
		d.logger.Error().Err(err).Msg("Gateway event stream ended; restart the daemon to reconnect")
	}
}

// rescanPlugins refreshes the catalog from disk and reconciles the
// host against it: enabled plugins that are not hosted get loaded,
// hosted plugins that are gone or disabled get unloaded. Archives that
// were replaced in place keep serving their old code until an explicit
// reload or restart.
func (d *Daemon) rescanPlugins(reason string) {
	if err := d.registry.Rescan(); err != nil {
		d.logger.Error().Err(err).Str("reason", reason).Msg("Plugin rescan failed")
		return
	}

	for _, p := range d.registry.All() {
		if p.Enabled && !d.host.Loaded(p.ID) {
			if err := d.controller.Load(p.ID); err != nil {
				d.logger.Error().Err(err).Str("plugin", p.ID).Msg("Plugin failed to load after rescan")
			}
		}
	}

	for _, id := range d.host.LoadedIDs() {
		p, err := d.registry.Get(id)
		if err == nil && p.Enabled {
			continue
		}
		if err := d.controller.Unload(id); err != nil {
			d.logger.Error().Err(err).Str("plugin", id).Msg("Plugin failed to unload after rescan")
		}
	}

	d.updatePluginGauges()
	d.logger.Debug().Str("reason", reason).Msg("Plugin directory rescanned")
}

// updatePluginGauges publishes catalog counts.
func (d *Daemon) updatePluginGauges() {
	status := d.registry.Status()
	d.metrics.PluginsKnown.Set(float64(status.PluginsCount))

	loaded := 0
	for _, p := range status.Plugins {
		if p.Loaded {
			loaded++
		}
	}
	d.metrics.PluginsLoaded.Set(float64(loaded))
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Kasumi daemon")

	if err := d.watcher.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop plugin watcher")
	}

	stopCtx := d.scheduler.Stop()
	<-stopCtx.Done()

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("Failed to shut down metrics server")
		}
		cancel()
	}

	// Stop event intake, then drain in-flight handlers.
	d.cancel()
	d.runner.WaitForActive(shutdownGrace)
	d.runner.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info().Msg("All goroutines stopped")
	case <-time.After(stopTimeout):
		d.logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Plugins: d.registry.Status(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait waits for the daemon to stop
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetRegistry returns the plugin registry
func (d *Daemon) GetRegistry() *plugin.Registry {
	return d.registry
}

// GetController returns the plugin lifecycle controller
func (d *Daemon) GetController() *plugin.Controller {
	return d.controller
}

// GetDispatcher returns the dispatch engine
func (d *Daemon) GetDispatcher() *dispatch.Dispatcher {
	return d.dispatcher
}
