package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/najoast/frametree/config"
	"github.com/najoast/frametree/frame"
	"github.com/najoast/frametree/ingest"
	"github.com/najoast/frametree/lifecycle"
	"github.com/najoast/frametree/logging"
	"github.com/najoast/frametree/metrics"
	"github.com/najoast/frametree/monitor"
)

const shutdownTimeout = 30 * time.Second

// Application owns the frame tree and the services around it
type Application struct {
	config     *config.Config
	configFile string
	log        zerolog.Logger
	logSet     bool

	tree     *frame.Tree
	notifier *lifecycle.Notifier
	monitor  *monitor.Server
	ingest   *ingest.Server
	watcher  *config.Watcher
	manager  *Manager

	mutex        sync.Mutex
	running      bool
	shutdownChan chan os.Signal
}

// AppOption configures an Application
type AppOption func(*Application)

// WithConfigFile enables hot reload of the file cfg was loaded from
func WithConfigFile(path string) AppOption {
	return func(app *Application) {
		app.configFile = path
	}
}

// WithAppLogger replaces the logger built from the configuration
func WithAppLogger(logger zerolog.Logger) AppOption {
	return func(app *Application) {
		app.log = logger
		app.logSet = true
	}
}

// NewApplication builds every component from cfg and registers the
// services with the lifecycle manager. Nothing runs until Run or Start.
func NewApplication(cfg *config.Config, opts ...AppOption) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	app := &Application{
		config:       cfg,
		shutdownChan: make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(app)
	}

	if !app.logSet {
		logger, err := logging.New(cfg.Log, cfg.App.Name)
		if err != nil {
			return nil, &ApplicationError{Operation: "configure", Service: "logging", Err: err}
		}
		app.log = logger
	}

	app.manager = NewManager(app.log)
	app.tree = frame.NewTree(
		frame.WithLogger(app.log.With().Str("component", "tree").Logger()),
		frame.WithObserver(metrics.NewObserver()),
		frame.WithWatchBuffer(cfg.Tree.WatchBuffer),
	)
	app.notifier = lifecycle.NewNotifier(app.tree,
		lifecycle.WithMailboxSize(cfg.Notifier.MailboxSize),
		lifecycle.WithLogger(app.log),
	)

	if err := app.registerServices(); err != nil {
		return nil, err
	}
	return app, nil
}

func (app *Application) registerServices() error {
	cfg := app.config

	register := func(s Service, deps ...string) error {
		if err := app.manager.Register(s.Name(), s, deps...); err != nil {
			return &ApplicationError{Operation: "register", Service: s.Name(), Err: err}
		}
		return nil
	}

	if err := register(&EventLogService{tree: app.tree, log: app.log.With().Str("component", "event-log").Logger()}); err != nil {
		return err
	}
	if err := register(&NotifierService{notifier: app.notifier}, "event-log"); err != nil {
		return err
	}

	if cfg.Notifier.Script != "" {
		if err := register(&ScriptService{path: cfg.Notifier.Script, notifier: app.notifier}, "notifier"); err != nil {
			return err
		}
	}

	if cfg.Monitor.Enabled {
		app.monitor = monitor.NewServer(app.tree, cfg.Monitor,
			monitor.WithLogger(app.log),
			monitor.WithStatus(func(ctx context.Context) any {
				return app.manager.Health(ctx)
			}),
		)
		if err := register(&MonitorService{server: app.monitor}, "notifier"); err != nil {
			return err
		}
	}

	if cfg.Ingest.Enabled {
		app.ingest = ingest.NewServer(app.notifier, cfg.Ingest, app.log)
		if err := register(&IngestService{server: app.ingest}, "notifier"); err != nil {
			return err
		}
	}

	if app.configFile != "" {
		watcher, err := config.NewWatcher(app.configFile, config.NewLoader(), app.log)
		if err != nil {
			return &ApplicationError{Operation: "configure", Service: "config-watcher", Err: err}
		}
		watcher.OnConfigChange(app.applyConfig)
		app.watcher = watcher
		if err := register(&ConfigWatcherService{watcher: watcher}); err != nil {
			return err
		}
	}

	return nil
}

// applyConfig applies the settings that can change at runtime
func (app *Application) applyConfig(oldConfig, newConfig *config.Config) {
	if oldConfig.Log.Level != newConfig.Log.Level {
		if err := logging.SetLevel(newConfig.Log.Level); err != nil {
			app.log.Warn().Err(err).Msg("log level not applied")
			return
		}
		app.log.Info().
			Str("from", oldConfig.Log.Level.String()).
			Str("to", newConfig.Log.Level.String()).
			Msg("log level changed")
	}
}

// Start starts all services without blocking
func (app *Application) Start(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if app.running {
		return fmt.Errorf("application is already running")
	}
	if err := app.manager.Start(ctx); err != nil {
		return err
	}
	app.running = true

	app.log.Info().
		Str("version", app.config.App.Version).
		Str("environment", app.config.App.Environment.String()).
		Strs("services", app.manager.Started()).
		Msg("frametree started")
	return nil
}

// Run starts all services and blocks until SIGINT, SIGTERM or ctx is
// done, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	if err := app.Start(ctx); err != nil {
		return err
	}

	select {
	case sig := <-app.shutdownChan:
		app.log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
		app.log.Info().Msg("context cancelled, shutting down")
	case <-app.notifier.Done():
		app.log.Warn().Msg("notifier stopped, shutting down")
	}

	return app.Shutdown(context.Background())
}

// Shutdown stops all services gracefully
func (app *Application) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if !app.running {
		return nil
	}
	app.running = false

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := app.manager.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}

	app.log.Info().Interface("tree", app.tree.Stats()).Msg("frametree stopped")
	return nil
}

// Config returns the configuration the application was built with
func (app *Application) Config() *config.Config {
	return app.config
}

// Tree returns the frame registry
func (app *Application) Tree() *frame.Tree {
	return app.tree
}

// Notifier returns the lifecycle notifier feeding the tree
func (app *Application) Notifier() *lifecycle.Notifier {
	return app.notifier
}

// Monitor returns the monitor server, or nil when disabled
func (app *Application) Monitor() *monitor.Server {
	return app.monitor
}

// Ingest returns the TCP event feed, or nil when disabled
func (app *Application) Ingest() *ingest.Server {
	return app.ingest
}

// Manager returns the lifecycle manager
func (app *Application) Manager() *Manager {
	return app.manager
}
