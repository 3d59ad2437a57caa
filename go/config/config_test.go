// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:3306", cfg.Addr())
	assert.True(t, cfg.Autocommit)
	assert.Equal(t, 1, cfg.PoolMinSize)
	assert.Equal(t, 10, cfg.PoolMaxSize)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty host", func(c *Config) { c.Host = "" }, "host"},
		{"port too small", func(c *Config) { c.Port = 0 }, "port"},
		{"port too large", func(c *Config) { c.Port = 70000 }, "port"},
		{"zero min size", func(c *Config) { c.PoolMinSize = 0 }, "pool_minsize"},
		{"max below min", func(c *Config) { c.PoolMinSize = 5; c.PoolMaxSize = 2 }, "pool_maxsize"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"zero base delay with retries", func(c *Config) { c.RetryBaseDelay = 0 }, "retry_base_delay"},
		{"max delay below base", func(c *Config) { c.RetryMaxDelay = time.Millisecond }, "retry_max_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mariaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: db.internal
port: 3307
user: app
database: orders
pool_minsize: 2
pool_maxsize: 8
max_retries: 5
retry_base_delay: 250ms
retry_max_delay: 5s
params:
  time_zone: "+00:00"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:3307", cfg.Addr())
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "orders", cfg.Database)
	assert.Equal(t, 2, cfg.PoolMinSize)
	assert.Equal(t, 8, cfg.PoolMaxSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 5*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, "+00:00", cfg.Params["time_zone"])

	// Unset options keep their defaults.
	assert.True(t, cfg.Autocommit)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool_minsize: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool_minsize")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MARIAFLOW_POOL_MAXSIZE", "32")
	t.Setenv("MARIAFLOW_HOST", "env.internal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.PoolMaxSize)
	assert.Equal(t, "env.internal", cfg.Host)
}

func TestFromMap(t *testing.T) {
	t.Run("decodes over defaults", func(t *testing.T) {
		cfg, err := FromMap(map[string]any{
			"host":             "db.internal",
			"pool_maxsize":     4,
			"retry_base_delay": "50ms",
			"retry_max_delay":  "1s",
		})
		require.NoError(t, err)
		assert.Equal(t, "db.internal", cfg.Host)
		assert.Equal(t, 4, cfg.PoolMaxSize)
		assert.Equal(t, 50*time.Millisecond, cfg.RetryBaseDelay)
		assert.Equal(t, 3, cfg.MaxRetries, "default preserved")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := FromMap(map[string]any{"port": 0})
		require.Error(t, err)
	})
}
