// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/audio/tagprobe"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/repository/boltstore"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/repository/prefs"
	"github.com/tejashwikalptaru/gojukebox/internal/adapter/web"
	"github.com/tejashwikalptaru/gojukebox/internal/config"
	"github.com/tejashwikalptaru/gojukebox/internal/logger"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
	"github.com/tejashwikalptaru/gojukebox/internal/service"
)

// Application is the root application structure that holds all dependencies.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Managing the application lifecycle (startup, shutdown)
// - Providing a clean entry point for the CLI
type Application struct {
	// Core dependencies
	logger   *slog.Logger
	settings *config.Config

	// Infrastructure
	eventBus ports.EventBus
	web      ports.WebClient
	probe    ports.AudioProbe

	// Repositories
	store   *boltstore.Store
	sources ports.SourceRepository
	values  ports.SavedValueRepository
	prefs   *prefs.PreferencesRepository

	// Services
	indexService    *service.IndexService
	variantService  *service.VariantService
	downloadService *service.DownloadService
	libraryService  *service.LibraryService
	sourceService   *service.SourceService

	shutdownOnce sync.Once
}

// Config holds application configuration.
type Config struct {
	// ConfigPath is an explicit config file; empty searches the defaults
	ConfigPath string

	// Settings replaces loading from ConfigPath when set
	Settings *config.Config

	// Preferences moves catalog sources and saved values into a host
	// fyne application's preferences; nil keeps them in config and the store
	Preferences fyne.Preferences

	// WebClient overrides the HTTP transport (nil for production)
	WebClient ports.WebClient

	// Logger overrides the logger built from Settings.Logging
	Logger *slog.Logger
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() Config {
	return Config{}
}

// NewApplication creates a new application with all dependencies wired.
func NewApplication(cfg Config) (*Application, error) {
	app := &Application{}

	// Step 1: Load settings
	settings := cfg.Settings
	if settings == nil {
		loaded, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		settings = loaded
	}
	app.settings = settings

	// Step 2: Create logger
	app.logger = cfg.Logger
	if app.logger == nil {
		l, err := logger.NewLogger(logger.Config{
			Level:  logger.ParseLevel(settings.Logging.Level),
			Format: settings.Logging.Format,
			File:   settings.Logging.File,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		app.logger = l
	}
	app.logger.Info("initializing application",
		slog.String("version", GetVersionInfo().Version),
		slog.String("save_dir", settings.Storage.SaveDir))

	// Step 3: Create an event bus
	syncBus := eventbus.NewSyncEventBus()
	syncBus.SetLogger(app.logger.With(slog.String("component", "eventbus")))
	app.eventBus = syncBus

	// Step 4: Create transport and probe
	app.web = cfg.WebClient
	if app.web == nil {
		app.web = web.NewClient(app.logger.With(slog.String("component", "web")), settings.HTTP.Timeout)
	}
	app.probe = tagprobe.New()

	// Step 5: Create repositories
	store, err := boltstore.Open(app.logger.With(slog.String("component", "store")), settings.DatabasePath(), settings.SongsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	app.store = store

	if cfg.Preferences != nil {
		defaults, err := settings.IndexSources()
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to read index sources: %w", err)
		}
		app.prefs = prefs.NewPreferencesRepository(cfg.Preferences, defaults)
		app.sources = app.prefs
		app.values = app.prefs
	} else {
		app.sources = config.NewFileSources(settings, cfg.ConfigPath)
		app.values = store
	}

	// Step 6: Create services (with dependency injection)
	app.sourceService = service.NewSourceService(
		app.logger.With(slog.String("service", "source")),
		app.sources,
	)

	app.indexService = service.NewIndexService(
		app.logger.With(slog.String("service", "index")),
		app.web,
		app.sources,
		app.values,
		app.eventBus,
		settings.IndexCacheDir(),
		settings.HTTP.Timeout,
	)

	app.variantService = service.NewVariantService(
		app.logger.With(slog.String("service", "variant")),
		app.store,
		app.indexService,
	)

	app.downloadService = service.NewDownloadService(
		app.logger.With(slog.String("service", "download")),
		app.web,
		app.store,
		app.variantService,
		app.eventBus,
		app.probe,
		service.DownloadConfig{
			ResolverURL: settings.Resolver.URL,
			AudioFormat: settings.Resolver.AudioFormat,
			Timeout:     settings.HTTP.Timeout,
		},
	)

	app.libraryService = service.NewLibraryService(
		app.logger.With(slog.String("service", "library")),
		app.store,
		app.probe,
		app.eventBus,
	)

	return app, nil
}

// Start initializes the catalog cache. A failed initial refresh is reported
// on the event bus and returned; the application stays usable.
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("starting application")
	return a.indexService.Initialize(ctx)
}

// Shutdown gracefully shuts down the application. Safe to call twice.
func (a *Application) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down application")

		// Shutdown services (in reverse order of creation)
		if a.libraryService != nil {
			a.libraryService.Shutdown()
		}
		if a.downloadService != nil {
			a.downloadService.Shutdown()
		}
		if a.indexService != nil {
			a.indexService.Shutdown()
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Warn("failed to close store", slog.Any("error", err))
			}
		}

		if a.eventBus != nil {
			if err := a.eventBus.Close(); err != nil {
				a.logger.Warn("failed to close event bus", slog.Any("error", err))
			}
		}

		a.logger.Info("application shutdown complete")
	})
}

// GetServices returns the application services.
func (a *Application) GetServices() (*service.IndexService, *service.VariantService, *service.DownloadService, *service.LibraryService) {
	return a.indexService, a.variantService, a.downloadService, a.libraryService
}

// GetSourceService returns the catalog source editor.
func (a *Application) GetSourceService() *service.SourceService {
	return a.sourceService
}

// GetEventBus returns the event bus.
func (a *Application) GetEventBus() ports.EventBus {
	return a.eventBus
}

// GetStore returns the local variant store.
func (a *Application) GetStore() *boltstore.Store {
	return a.store
}

// GetProbe returns the audio tag probe.
func (a *Application) GetProbe() ports.AudioProbe {
	return a.probe
}

// GetSettings returns the loaded configuration.
func (a *Application) GetSettings() *config.Config {
	return a.settings
}

// GetLogger returns the root logger.
func (a *Application) GetLogger() *slog.Logger {
	return a.logger
}
