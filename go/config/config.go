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

// Package config holds the explicit configuration surface of the client.
// The core always accepts configuration by parameter; Load and FromMap
// are helpers for callers that source it from files, maps, or the
// environment.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the full set of options recognized by the client.
type Config struct {
	// Server endpoint and credentials.
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// Autocommit controls the session autocommit mode of every pooled
	// connection. When false, statements outside an explicit transaction
	// are not committed until the caller issues COMMIT.
	Autocommit bool `mapstructure:"autocommit"`

	// Pool bounds. 1 <= PoolMinSize <= PoolMaxSize.
	PoolMinSize int `mapstructure:"pool_minsize"`
	PoolMaxSize int `mapstructure:"pool_maxsize"`

	// Retry policy for transient failures. MaxRetries is the number of
	// additional attempts after the first; zero disables retries.
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`

	// Transport timeouts. Zero means no timeout.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	// IdleHealthCheckInterval is how often the pool pings idle
	// connections and discards dead ones. Zero disables the check.
	IdleHealthCheckInterval time.Duration `mapstructure:"idle_health_check_interval"`

	// Params are extra session system variables sent on handshake.
	Params map[string]string `mapstructure:"params"`
}

// Default returns the configuration the client uses when the caller
// does not override an option.
func Default() *Config {
	return &Config{
		Host:                    "127.0.0.1",
		Port:                    3306,
		Autocommit:              true,
		PoolMinSize:             1,
		PoolMaxSize:             10,
		MaxRetries:              3,
		RetryBaseDelay:          100 * time.Millisecond,
		RetryMaxDelay:           2 * time.Second,
		ConnectTimeout:          10 * time.Second,
		IdleHealthCheckInterval: 30 * time.Second,
	}
}

// Validate checks option constraints. Errors name the offending field.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.PoolMinSize < 1 {
		return fmt.Errorf("config: pool_minsize must be >= 1, got %d", c.PoolMinSize)
	}
	if c.PoolMaxSize < c.PoolMinSize {
		return fmt.Errorf("config: pool_maxsize %d must be >= pool_minsize %d",
			c.PoolMaxSize, c.PoolMinSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("config: retry delays must not be negative")
	}
	if c.MaxRetries > 0 {
		if c.RetryBaseDelay == 0 {
			return fmt.Errorf("config: retry_base_delay must be set when max_retries > 0")
		}
		if c.RetryMaxDelay < c.RetryBaseDelay {
			return fmt.Errorf("config: retry_max_delay %v must be >= retry_base_delay %v",
				c.RetryMaxDelay, c.RetryBaseDelay)
		}
	}
	return nil
}

// Addr returns the host:port endpoint of the server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// envPrefix is the prefix for environment variable overrides, e.g.
// MARIAFLOW_POOL_MAXSIZE for the pool_maxsize option.
const envPrefix = "MARIAFLOW"

// Load reads a configuration file (YAML, JSON, or TOML, by extension)
// and applies MARIAFLOW_* environment overrides on top of the defaults.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := Default()
	// Viper's default decode hooks already handle "250ms"-style durations.
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap decodes a plain option map into a Config over the defaults.
// String durations like "250ms" are accepted.
func FromMap(options map[string]any) (*Config, error) {
	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := dec.Decode(options); err != nil {
		return nil, fmt.Errorf("config: decoding options: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("autocommit", def.Autocommit)
	v.SetDefault("pool_minsize", def.PoolMinSize)
	v.SetDefault("pool_maxsize", def.PoolMaxSize)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("retry_base_delay", def.RetryBaseDelay)
	v.SetDefault("retry_max_delay", def.RetryMaxDelay)
	v.SetDefault("connect_timeout", def.ConnectTimeout)
	v.SetDefault("idle_health_check_interval", def.IdleHealthCheckInterval)
}
