package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/internal/config"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/internal/hcl"
	"github.com/vk/dynplug/internal/host"
	"github.com/vk/dynplug/loader"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logger    *slog.Logger
	config    *config.Model
	converter config.Converter
	builtins  *loader.StaticOpener
	loader    *loader.Loader
	host      *host.Host
}

// NewApp loads the configuration and builds the loader and host it
// describes. Logs go to logW. Builtin plugins default to coreModules.
func NewApp(logW io.Writer, appConfig *Config, cfgLoader config.Loader, builtins ...*abi.Declaration) (*App, error) {
	cfgModel := config.Default()
	if len(appConfig.ConfigPaths) > 0 {
		bootstrap := ctxlog.WithLogger(context.Background(), newLogger(appConfig.LogLevel, appConfig.LogFormat, logW))
		m, err := cfgLoader.Load(bootstrap, appConfig.ConfigPaths...)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfgModel = m
	}

	level, format := appConfig.LogLevel, appConfig.LogFormat
	if level == "" {
		level = cfgModel.Host.LogLevel
	}
	if format == "" {
		format = cfgModel.Host.LogFormat
	}
	logger := newLogger(level, format, logW)
	logger.Debug("Configuration loaded.", "plugins", len(cfgModel.Plugins), "paths", appConfig.ConfigPaths)

	static := newBuiltins(builtins...)
	l := loader.New(
		loader.WithOpener(loader.Mux{
			Static: static,
			Files:  loader.GoPluginOpener{CheckBuildInfo: cfgModel.Host.CheckBuildInfo},
		}),
		loader.WithReprovide(cfgModel.Host.Reprovide),
	)
	logger.Debug("Loader configured.", "builtins", static.Paths(), "reprovide", cfgModel.Host.Reprovide)

	return &App{
		logger:    logger,
		config:    cfgModel,
		converter: hcl.NewConverter(),
		builtins:  static,
		loader:    l,
		host:      host.New(l, host.WithStrictDependencies(cfgModel.Host.StrictDependencies)),
	}, nil
}

// Context returns ctx carrying the application logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Start loads and initialises every enabled plugin of the configuration.
func (a *App) Start(ctx context.Context) error {
	ctx = a.Context(ctx)
	if err := a.host.LoadAll(ctx, a.config); err != nil {
		return fmt.Errorf("failed to load plugins: %w", err)
	}
	if err := a.host.InitAll(ctx); err != nil {
		return fmt.Errorf("failed to initialise plugins: %w", err)
	}
	a.logger.Info("Plugins ready.", "count", len(a.host.Names()))
	return nil
}

// Shutdown unloads every plugin.
func (a *App) Shutdown(ctx context.Context) {
	a.host.Shutdown(a.Context(ctx))
}

// Host returns the plugin host.
func (a *App) Host() *host.Host { return a.host }

// Model returns the loaded configuration.
func (a *App) Model() *config.Model { return a.config }

// Loader returns the library loader.
func (a *App) Loader() *loader.Loader { return a.loader }

// Builtins lists the paths of the compiled-in plugins.
func (a *App) Builtins() []string { return a.builtins.Paths() }
