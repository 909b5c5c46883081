// Package app wires the orchestration runtime together: the loop, the task
// and plugin managers, the agent bridge, hot reload and the HTTP API. The
// companion view and the daemon both run on top of an App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/deskmate/internal/agent"
	"github.com/zjrosen/deskmate/internal/config"
	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/flags"
	"github.com/zjrosen/deskmate/internal/httpapi"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/observability"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins"
	"github.com/zjrosen/deskmate/internal/pubsub"
	"github.com/zjrosen/deskmate/internal/task"
	"github.com/zjrosen/deskmate/internal/tracing"
	"github.com/zjrosen/deskmate/internal/watcher"
	"github.com/zjrosen/deskmate/internal/worker"
)

const (
	brokerCallback = "broker"
	slowJob        = 100 * time.Millisecond
)

// Option configures an App.
type Option func(*App)

// WithRegistry replaces the built-in plugin set.
func WithRegistry(reg *plugin.Registry) Option {
	return func(a *App) {
		a.registry = reg
	}
}

// App is a running deskmate instance.
type App struct {
	cfg      config.Config
	registry *plugin.Registry

	Flags   *flags.Registry
	Worker  *worker.Worker
	Tasks   *task.Manager
	Plugins *plugin.Manager
	Agent   *agent.Bridge
	Metrics *observability.Metrics
	Store   *config.PluginStore

	broker  *pubsub.Broker[event.Event]
	tracing *tracing.Provider
	server  *httpapi.Server
	watcher *watcher.Watcher
}

// New builds the runtime from cfg. Nothing runs until Start.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Plugins.Dir == "" {
		return nil, errors.New("plugins.dir is not set and no home directory was found")
	}

	a := &App{cfg: cfg, registry: plugins.Registry()}
	for _, opt := range opts {
		opt(a)
	}

	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tracer: %w", err)
	}
	a.tracing = tp
	tracer := tp.Tracer()

	a.Flags = flags.New(cfg.Flags)
	a.broker = pubsub.NewBroker[event.Event]()
	a.Worker = worker.New(
		worker.WithQueueCapacity(cfg.Worker.QueueCapacity),
		worker.WithGracePeriod(cfg.Worker.GracePeriod),
		worker.WithMiddleware(worker.LoggingMiddleware(slowJob), tracing.WorkerMiddleware(tracer)),
	)
	a.Metrics = observability.NewMetrics(a.Worker.QueueLength)
	a.Tasks = task.NewManager(a.Worker, task.WithTracer(tracer), task.WithObserver(a.Metrics))
	a.Tasks.RegisterCallback(brokerCallback, func(e event.Event) {
		a.broker.Publish(pubsub.Emitted, e)
	})
	a.Store = config.NewPluginStore(cfg.Plugins.Dir)
	a.Plugins = plugin.NewManager(a.registry, a.Store, a.Tasks,
		plugin.WithTracer(tracer),
		plugin.WithObserver(a.Metrics),
	)
	a.Agent = agent.New(a.Plugins, a.Tasks)
	a.server = httpapi.New(httpapi.Deps{
		Worker:  a.Worker,
		Tasks:   a.Tasks,
		Plugins: a.Plugins,
		Agent:   a.Agent,
		Events:  a.broker,
		Metrics: a.Metrics,
		Flags:   a.Flags,
	})
	return a, nil
}

// Events is the stream of broadcast events.
func (a *App) Events() pubsub.Subscriber[event.Event] {
	return a.broker
}

// Handler serves the HTTP API.
func (a *App) Handler() http.Handler {
	return a.server.Router()
}

// Start runs the loop, loads the plugins and, when enabled, begins
// watching plugin configs.
func (a *App) Start(ctx context.Context) error {
	if err := a.Worker.Start(); err != nil {
		return err
	}
	a.Worker.OnStop(func(ctx context.Context) {
		a.Agent.Detach()
		a.Plugins.Close()
		if err := a.Tasks.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTask, "tasks did not stop in time", err)
		}
	})

	_, err := worker.Await[any](ctx, a.Worker.Submit("app.init", func(ctx context.Context) (any, error) {
		a.Agent.Attach()
		return nil, a.Plugins.Init(ctx)
	}))
	if err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}

	if a.Flags.Enabled(flags.FlagHotReload) {
		if err := a.watch(); err != nil {
			// Hot reload is a convenience; the pet runs without it.
			log.ErrorErr(log.CatWatcher, "config watcher unavailable", err)
		}
	}
	log.Info(log.CatPlugin, "deskmate started", "plugins", len(a.registry.All()))
	return nil
}

func (a *App) watch() error {
	var ids []string
	for _, d := range a.registry.All() {
		ids = append(ids, d.ID)
		if err := os.MkdirAll(filepath.Dir(a.Store.Path(d.ID)), 0o750); err != nil {
			return err
		}
	}

	w, err := watcher.New(watcher.DefaultConfig(a.Store.Root(), ids))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	a.watcher = w

	go func() {
		for ids := range changes {
			a.reloadConfigs(ids)
		}
	}()
	return nil
}

// reloadConfigs re-reads the given plugin configs from disk and applies
// them on the loop.
func (a *App) reloadConfigs(ids []string) {
	for _, id := range ids {
		if err := a.Store.Invalidate(context.Background(), id); err != nil {
			log.ErrorErr(log.CatConfig, "invalidating plugin config", err, "plugin", id)
		}
		a.Worker.Submit("app.reload_config", func(ctx context.Context) (any, error) {
			if err := a.Plugins.ReloadConfig(ctx, id); err != nil {
				log.ErrorErr(log.CatConfig, "reloading plugin config", err, "plugin", id)
				return nil, err
			}
			log.Info(log.CatConfig, "plugin config reloaded", "plugin", id)
			return nil, nil
		})
	}
}

// Stop unloads the plugins, cancels running tasks and releases resources.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
		a.watcher = nil
	}
	errs = append(errs, a.Worker.Stop(ctx))
	a.broker.Close()
	errs = append(errs, a.tracing.Shutdown(ctx))
	return errors.Join(errs...)
}
