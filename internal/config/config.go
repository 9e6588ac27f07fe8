// Package config loads jukebox configuration from defaults, an optional
// .env file, a YAML config file and JUKEBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tejashwikalptaru/gojukebox/internal/domain"
	"github.com/tejashwikalptaru/gojukebox/internal/ports"
)

const appName = "gojukebox"

// Config holds all application configuration
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Indexes  []IndexConfig  `mapstructure:"indexes"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig holds on-disk locations
type StorageConfig struct {
	SaveDir string `mapstructure:"save_dir"`
}

// IndexConfig is one remote catalog source
type IndexConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// HTTPConfig holds transport settings
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ResolverConfig points at the service turning YouTube ids into audio URLs
type ResolverConfig struct {
	URL         string `mapstructure:"url"`
	AudioFormat string `mapstructure:"audio_format"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File   string `mapstructure:"file"`
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			SaveDir: filepath.Join(xdg.DataHome, appName),
		},
		Indexes: []IndexConfig{},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Resolver: ResolverConfig{
			URL:         "https://api.cobalt.tools/api/json",
			AudioFormat: "mp3",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// DefaultConfigDir returns the directory searched for config.yaml
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// Load reads configuration. An empty path searches the default config
// directory and the working directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	// A missing .env is the common case
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	cfg := DefaultConfig()
	v := newViper(cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

func newViper(defaults *Config) *viper.Viper {
	v := viper.New()

	v.SetDefault("storage.save_dir", defaults.Storage.SaveDir)
	v.SetDefault("http.timeout", defaults.HTTP.Timeout)
	v.SetDefault("resolver.url", defaults.Resolver.URL)
	v.SetDefault("resolver.audio_format", defaults.Resolver.AudioFormat)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	// Environment variable overrides, e.g. JUKEBOX_STORAGE_SAVE_DIR
	v.SetEnvPrefix("JUKEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Save writes cfg as YAML to path, or to the default config directory
// when path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = filepath.Join(DefaultConfigDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.Set("storage.save_dir", cfg.Storage.SaveDir)
	v.Set("http.timeout", cfg.HTTP.Timeout.String())
	v.Set("resolver.url", cfg.Resolver.URL)
	v.Set("resolver.audio_format", cfg.Resolver.AudioFormat)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)

	indexes := make([]map[string]interface{}, 0, len(cfg.Indexes))
	for _, idx := range cfg.Indexes {
		indexes = append(indexes, map[string]interface{}{"url": idx.URL, "enabled": idx.Enabled})
	}
	v.Set("indexes", indexes)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// IndexSources returns the configured catalog sources in file order.
func (c *Config) IndexSources() ([]domain.IndexSource, error) {
	sources := make([]domain.IndexSource, 0, len(c.Indexes))
	for _, idx := range c.Indexes {
		sources = append(sources, domain.IndexSource{URL: strings.TrimSpace(idx.URL), Enabled: idx.Enabled})
	}
	return sources, nil
}

// IndexCacheDir is where fetched catalogs are mirrored.
func (c *Config) IndexCacheDir() string {
	return filepath.Join(c.Storage.SaveDir, "indexes-cache")
}

// SongsDir is where downloaded and imported songs are written.
func (c *Config) SongsDir() string {
	return filepath.Join(c.Storage.SaveDir, "songs")
}

// DatabasePath is the bolt database holding local variants and saved values.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.SaveDir, "jukebox.db")
}

// FileSources edits the catalog sources of a Config and writes them back to
// its YAML file.
type FileSources struct {
	cfg  *Config
	path string
	mu   sync.RWMutex
}

// NewFileSources returns a source store for cfg. An empty path saves to the
// default config directory.
func NewFileSources(cfg *Config, path string) *FileSources {
	return &FileSources{cfg: cfg, path: path}
}

// IndexSources implements ports.SettingsRepository.
func (f *FileSources) IndexSources() ([]domain.IndexSource, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg.IndexSources()
}

// SaveIndexSources implements ports.SourceRepository.
func (f *FileSources) SaveIndexSources(sources []domain.IndexSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	indexes := make([]IndexConfig, 0, len(sources))
	for _, s := range sources {
		indexes = append(indexes, IndexConfig{URL: s.URL, Enabled: s.Enabled})
	}
	previous := f.cfg.Indexes
	f.cfg.Indexes = indexes
	if err := Save(f.cfg, f.path); err != nil {
		f.cfg.Indexes = previous
		return domain.NewRepositoryError("save", "settings", "failed to write index sources", err)
	}
	return nil
}

var (
	_ ports.SettingsRepository = (*Config)(nil)
	_ ports.SourceRepository   = (*FileSources)(nil)
)
