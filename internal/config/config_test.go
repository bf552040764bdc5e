package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/profiledir/internal/credentials"
	"github.com/wolfeidau/profiledir/internal/identity"
)

// isolate points HOME and the working directory at empty temp dirs.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoad(t *testing.T) {
	t.Run("defaults without any source", func(t *testing.T) {
		home := isolate(t)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.Equal(t, identity.DefaultBaseURL, cfg.ServerURL)

		// directory reads are cached on disk between runs
		assert.Equal(t, filepath.Join(home, ".profiledir", "cache"), cfg.CacheDir)
		assert.Equal(t, cfg.CacheDir, cfg.Identity("test").CacheDir)
	})

	t.Run("default config file", func(t *testing.T) {
		home := isolate(t)
		writeFile(t, filepath.Join(home, ".profiledir", "config.yaml"), `
server: https://people.example.com/api/account
timeout: 30s
store:
  backend: sqlite
retry:
  maxTries: 4
  initialInterval: 250ms
`)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "https://people.example.com/api/account", cfg.ServerURL)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, BackendSQLite, cfg.Store.Backend)
		assert.Equal(t, uint(4), cfg.Retry.MaxTries)
		assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialInterval)
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		isolate(t)

		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		isolate(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		writeFile(t, path, "server: [unterminated")

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse YAML config")
	})

	t.Run("environment overrides file", func(t *testing.T) {
		isolate(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		writeFile(t, path, "timeout: 30s\nstore:\n  backend: sqlite\n")

		t.Setenv("PROFILEDIR_TIMEOUT", "5s")
		t.Setenv("PROFILEDIR_STORE_BACKEND", "memory")
		t.Setenv("PROFILEDIR_DEBUG", "true")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.Equal(t, BackendMemory, cfg.Store.Backend)
		assert.True(t, cfg.Debug)
	})

	t.Run("dotenv file", func(t *testing.T) {
		isolate(t)
		writeFile(t, ".env", "PROFILEDIR_CACHE_DIR=/tmp/profiledir-cache\n")
		t.Cleanup(func() { os.Unsetenv("PROFILEDIR_CACHE_DIR") })

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "/tmp/profiledir-cache", cfg.CacheDir)
	})

	t.Run("invalid env value", func(t *testing.T) {
		isolate(t)
		t.Setenv("PROFILEDIR_TIMEOUT", "soon")

		_, err := Load("")
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "redis" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -time.Second }, wantErr: true},
		{name: "missing scheme", mutate: func(c *Config) { c.ServerURL = "people.example.com/api" }, wantErr: true},
		{name: "empty url", mutate: func(c *Config) { c.ServerURL = "" }, wantErr: true},
		{name: "none backend", mutate: func(c *Config) { c.Store.Backend = BackendNone }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("adds trailing slash", func(t *testing.T) {
		cfg := Default()
		cfg.ServerURL = "https://people.example.com/api/account"

		require.NoError(t, cfg.Validate())
		assert.Equal(t, "https://people.example.com/api/account/", cfg.ServerURL)
	})
}

func TestConfig_OpenStorage(t *testing.T) {
	tests := []struct {
		backend string
		check   func(t *testing.T, storage credentials.Storage)
	}{
		{backend: BackendFile, check: func(t *testing.T, storage credentials.Storage) {
			assert.IsType(t, &credentials.FileStorage{}, storage)
		}},
		{backend: BackendSQLite, check: func(t *testing.T, storage credentials.Storage) {
			assert.IsType(t, &credentials.SQLiteStorage{}, storage)
		}},
		{backend: BackendMemory, check: func(t *testing.T, storage credentials.Storage) {
			assert.IsType(t, &credentials.MemoryStorage{}, storage)
		}},
		{backend: BackendNone, check: func(t *testing.T, storage credentials.Storage) {
			assert.IsType(t, credentials.NoopStorage{}, storage)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := Default()
			cfg.Store = Store{Backend: tt.backend, Dir: t.TempDir()}

			storage, closeFn, err := cfg.OpenStorage()
			require.NoError(t, err)
			require.NotNil(t, closeFn)
			defer func() { assert.NoError(t, closeFn()) }()

			tt.check(t, storage)
			require.NoError(t, storage.Put(credentials.KeyAccessToken, "token"))
		})
	}

	t.Run("unknown backend", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Backend = "etcd"

		_, _, err := cfg.OpenStorage()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfig_Identity(t *testing.T) {
	cfg := Default()
	cfg.CacheDir = "/var/cache/profiledir"

	ic := cfg.Identity("1.2.3")
	assert.Equal(t, cfg.ServerURL, ic.BaseURL)
	assert.Equal(t, cfg.Timeout, ic.Timeout)
	assert.Equal(t, "profiledir/1.2.3", ic.UserAgent)
	assert.Equal(t, "/var/cache/profiledir", ic.CacheDir)
}
