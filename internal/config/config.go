// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/casegen/casegen/internal/export"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// Config is the top-level casegen configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Server     ServerConfig     `mapstructure:"server"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Generation GenerationConfig `mapstructure:"generation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	History    HistoryConfig    `mapstructure:"history"`
	Export     ExportConfig     `mapstructure:"export"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// TransportConfig selects and configures the upstream the protocol talks to.
type TransportConfig struct {
	Kind      string            `mapstructure:"kind"`
	Format    string            `mapstructure:"format"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	APIKey    string            `mapstructure:"api_key"`
	BaseURL   string            `mapstructure:"base_url"`
	Model     string            `mapstructure:"model"`
	MaxTokens int               `mapstructure:"max_tokens"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	// HealthCooldown is how long the transport is reported unhealthy after a
	// failed exchange.
	HealthCooldown time.Duration `mapstructure:"health_cooldown"`
}

// GenerationConfig holds defaults for generation requests.
type GenerationConfig struct {
	// AuxToken is forwarded as <confluence_token> so the flow can read
	// protected feature pages.
	AuxToken string `mapstructure:"aux_token"`
}

// StorageConfig selects the KV backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

// ExportConfig holds ticketing connection profiles keyed by name.
type ExportConfig struct {
	Concurrency int                       `mapstructure:"concurrency"`
	Profiles    map[string]export.Profile `mapstructure:"profiles"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	validKinds    = []string{"http", "openai", "openrouter", "anthropic", "google", "fake"}
	validFormats  = []string{"standard", "inputs", "message"}
	validBackends = []string{"sqlite", "memory"}
	validRoutes   = []string{"generate", "agent", "export"}
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("transport.kind", "http")
	v.SetDefault("transport.format", "standard")
	for _, route := range validRoutes {
		v.SetDefault("transport.endpoints."+route, "")
	}
	// Keys without a default are invisible to env overrides and keyring
	// resolution, so every settable string gets an empty one.
	v.SetDefault("transport.api_key", "")
	v.SetDefault("transport.base_url", "")
	v.SetDefault("transport.model", "")
	v.SetDefault("transport.max_tokens", 0)
	v.SetDefault("transport.timeout", 5*time.Minute)
	v.SetDefault("transport.health_cooldown", 30*time.Second)
	v.SetDefault("generation.aux_token", "")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("history.limit", 50)
	v.SetDefault("export.concurrency", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// SetupEnv binds CASEGEN_* environment variables, with "." mapped to "_".
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("CASEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cgerr.Errorf(cgerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, cgerr.Errorf(cgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from path (optional) on top of defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, cgerr.Errorf(cgerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateExport()...)
	errs = append(errs, c.validateLog()...)

	return errs
}

func invalid(format string, args ...any) error {
	return cgerr.Errorf(cgerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateServer() []error {
	if c.Server.Listen == "" {
		return []error{invalid("server.listen must not be empty")}
	}
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return []error{invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return []error{invalid("server.listen port must be between 1 and 65535, got %q", portStr)}
	}
	return nil
}

func (c *Config) validateTransport() []error {
	var errs []error
	t := c.Transport

	if !slices.Contains(validKinds, t.Kind) {
		errs = append(errs, invalid("transport.kind must be one of %v, got %q", validKinds, t.Kind))
	}
	if t.Kind == "http" && !slices.Contains(validFormats, t.Format) {
		errs = append(errs, invalid("transport.format must be one of %v, got %q", validFormats, t.Format))
	}
	for route, raw := range t.Endpoints {
		if !slices.Contains(validRoutes, route) {
			errs = append(errs, invalid("transport.endpoints.%s is not a known route %v", route, validRoutes))
			continue
		}
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, invalid("transport.endpoints.%s must be an absolute URL, got %q", route, raw))
		}
	}
	if t.Timeout < 0 {
		errs = append(errs, invalid("transport.timeout must not be negative, got %s", t.Timeout))
	}
	if t.MaxTokens < 0 {
		errs = append(errs, invalid("transport.max_tokens must not be negative, got %d", t.MaxTokens))
	}
	if t.HealthCooldown <= 0 {
		errs = append(errs, invalid("transport.health_cooldown must be positive, got %s", t.HealthCooldown))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	if !slices.Contains(validBackends, c.Storage.Backend) {
		errs = append(errs, invalid("storage.backend must be one of %v, got %q", validBackends, c.Storage.Backend))
	}
	if c.History.Limit <= 0 {
		errs = append(errs, invalid("history.limit must be greater than 0, got %d", c.History.Limit))
	}
	return errs
}

func (c *Config) validateExport() []error {
	var errs []error
	if c.Export.Concurrency < 0 {
		errs = append(errs, invalid("export.concurrency must not be negative, got %d", c.Export.Concurrency))
	}
	for name, p := range c.Export.Profiles {
		if p.ConnectionURL == "" {
			errs = append(errs, invalid("export.profiles.%s.connection_url must not be empty", name))
		}
	}
	return errs
}

func (c *Config) validateLog() []error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, invalid("log.level must be one of [debug info warn error], got %q", c.Log.Level))
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		errs = append(errs, invalid("log.format must be one of [text json], got %q", c.Log.Format))
	}
	return errs
}

// String masks the API key for logging.
func (t TransportConfig) String() string {
	key := ""
	if t.APIKey != "" {
		key = "***"
	}
	return fmt.Sprintf("kind=%s format=%s model=%s api_key=%s", t.Kind, t.Format, t.Model, key)
}
