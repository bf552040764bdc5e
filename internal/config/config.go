// Package config loads profiledir settings.
//
// Values are layered, later sources winning: built-in defaults, the YAML
// config file, a .env file in the working directory, then PROFILEDIR_
// environment variables. Command line flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/profiledir/internal/credentials"
	"github.com/wolfeidau/profiledir/internal/identity"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PROFILEDIR_"

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)

var ErrInvalidConfig = errors.New("invalid config")

type Store struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	Dir     string `yaml:"dir"     env:"DIR"`
}

type Retry struct {
	MaxTries        uint          `yaml:"maxTries"        env:"MAX_TRIES"`
	InitialInterval time.Duration `yaml:"initialInterval" env:"INITIAL_INTERVAL"`
}

type Config struct {
	ServerURL string        `yaml:"server"   env:"SERVER_URL"`
	Timeout   time.Duration `yaml:"timeout"  env:"TIMEOUT"`
	Store     Store         `yaml:"store"    envPrefix:"STORE_"`
	CacheDir  string        `yaml:"cacheDir" env:"CACHE_DIR"`
	Retry     Retry         `yaml:"retry"    envPrefix:"RETRY_"`
	Debug     bool          `yaml:"debug"    env:"DEBUG"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{
		ServerURL: identity.DefaultBaseURL,
		Timeout:   15 * time.Second,
		Store: Store{
			Backend: BackendFile,
		},
		Retry: Retry{
			MaxTries:        1,
			InitialInterval: 500 * time.Millisecond,
		},
	}

	// directory reads stay cached across runs in ~/.profiledir/cache
	if dir, err := credentials.DefaultDir(); err == nil {
		cfg.CacheDir = filepath.Join(dir, "cache")
	}

	return cfg
}

// DefaultPath returns ~/.profiledir/config.yaml.
func DefaultPath() (string, error) {
	dir, err := credentials.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load builds the configuration. An empty path reads DefaultPath, which may
// be missing; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if defaultPath, err := DefaultPath(); err == nil {
			path = defaultPath
		}
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, err
			}
			log.Debug().Str("path", path).Msg("no config file")
		}
	}

	// godotenv leaves variables that are already set alone
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	log.Debug().Str("path", path).Msg("loaded config file")

	return nil
}

// Validate checks the configuration and normalises the server URL to end
// with a slash.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile, BackendSQLite, BackendMemory, BackendNone:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: server URL %q needs a scheme and host", ErrInvalidConfig, c.ServerURL)
	}
	if !strings.HasSuffix(c.ServerURL, "/") {
		c.ServerURL += "/"
	}

	return nil
}

// Identity returns the identity client configuration.
func (c Config) Identity(version string) identity.Config {
	return identity.Config{
		BaseURL:   c.ServerURL,
		Timeout:   c.Timeout,
		UserAgent: "profiledir/" + version,
		CacheDir:  c.CacheDir,
	}
}

// OpenStorage opens the configured storage backend. An empty Store.Dir means
// ~/.profiledir. The returned close func is never nil.
func (c Config) OpenStorage() (credentials.Storage, func() error, error) {
	noClose := func() error { return nil }

	switch c.Store.Backend {
	case BackendFile, "":
		storage, err := credentials.NewFileStorage(c.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return storage, noClose, nil
	case BackendSQLite:
		dir := c.Store.Dir
		if dir == "" {
			defaultDir, err := credentials.DefaultDir()
			if err != nil {
				return nil, nil, err
			}
			dir = defaultDir
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		storage, err := credentials.OpenSQLiteStorage(filepath.Join(dir, "session.db"))
		if err != nil {
			return nil, nil, err
		}
		return storage, storage.Close, nil
	case BackendMemory:
		return credentials.NewMemoryStorage(), noClose, nil
	case BackendNone:
		return credentials.NoopStorage{}, noClose, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
}
