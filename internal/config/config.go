// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the mcpfleet configuration.
//
// Configuration is layered: built-in defaults, then the YAML config file,
// then environment variables. The zero-config default describes the
// standard local fleet, so mcpfleet works with no file at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bk918/mcpfleet/internal/docker"
	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/probe"
	pkgerrors "github.com/bk918/mcpfleet/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// DefaultStartTimeout bounds how long a launch waits for started services
// to report healthy.
const DefaultStartTimeout = 60 * time.Second

// Config represents the complete mcpfleet configuration.
type Config struct {
	Fleet FleetConfig `yaml:"fleet" json:"fleet"`
	Probe ProbeConfig `yaml:"probe" json:"probe"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

// FleetConfig describes the managed deployment.
type FleetConfig struct {
	// ComposeFile is the compose file that defines the fleet.
	// Environment: MCPFLEET_COMPOSE_FILE
	// Default: docker-compose.mcp.yml
	ComposeFile string `yaml:"compose_file,omitempty" json:"compose_file,omitempty"`

	// ProjectName is the compose project name.
	// Default: mcpfleet
	ProjectName string `yaml:"project_name,omitempty" json:"project_name,omitempty"`

	// Core lists the services every launch requires.
	Core []fleet.ServiceSpec `yaml:"core,omitempty" json:"core,omitempty"`

	// AddOn is the optional profiled service. An explicit null removes
	// the add-on tier.
	AddOn *fleet.ServiceSpec `yaml:"addon,omitempty" json:"addon,omitempty"`
}

// ProbeConfig tunes the liveness probes.
type ProbeConfig struct {
	// HealthTimeout bounds a single health check request.
	// Default: 3s
	HealthTimeout time.Duration `yaml:"health_timeout,omitempty" json:"health_timeout,omitempty"`

	// DialTimeout bounds a single TCP port probe.
	// Default: 1s
	DialTimeout time.Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`

	// StartTimeout bounds the wait for started services to become
	// healthy.
	// Default: 60s
	StartTimeout time.Duration `yaml:"start_timeout,omitempty" json:"start_timeout,omitempty"`

	// DockerBinary is the container runtime binary.
	// Environment: MCPFLEET_DOCKER_BINARY
	// Default: docker
	DockerBinary string `yaml:"docker_binary,omitempty" json:"docker_binary,omitempty"`
}

// LogConfig configures CLI logging.
type LogConfig struct {
	// Level is the log level (trace, debug, info, warn, error).
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is the log format (text, json).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// AddSource includes source file positions in log output.
	AddSource bool `yaml:"add_source" json:"add_source"`
}

// Default returns the built-in configuration: the standard local fleet
// with stock probe timeouts and human-readable logging.
func Default() *Config {
	def := fleet.Default()

	return &Config{
		Fleet: FleetConfig{
			ComposeFile: fleet.DefaultComposeFile,
			ProjectName: fleet.DefaultProjectName,
			Core:        def.Core,
			AddOn:       def.AddOn,
		},
		Probe: ProbeConfig{
			HealthTimeout: probe.DefaultHealthTimeout,
			DialTimeout:   probe.DefaultDialTimeout,
			StartTimeout:  DefaultStartTimeout,
			DockerBinary:  docker.DefaultBinary,
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "text",
			AddSource: false,
		},
	}
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables, in increasing precedence. If configPath is
// empty the default XDG location is tried; a missing file there is not
// an error, a missing explicit path is.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &pkgerrors.NotFoundError{Resource: "config file", ID: configPath}
			}
			return nil, &pkgerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	} else if path, err := ConfigPath(); err == nil {
		if err := cfg.loadFromFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &pkgerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	// Refill zero values so minimal configs work
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &pkgerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	if err := cfg.FleetSpec().Validate(); err != nil {
		return nil, &pkgerrors.ConfigError{
			Key:    "fleet",
			Reason: "fleet validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// FleetSpec materializes the fleet model from the configuration.
func (c *Config) FleetSpec() *fleet.Fleet {
	return &fleet.Fleet{
		Core:  c.Fleet.Core,
		AddOn: c.Fleet.AddOn,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// applyDefaults fills in zero values with the built-in defaults.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Fleet.ComposeFile == "" {
		c.Fleet.ComposeFile = defaults.Fleet.ComposeFile
	}
	if c.Fleet.ProjectName == "" {
		c.Fleet.ProjectName = defaults.Fleet.ProjectName
	}
	if len(c.Fleet.Core) == 0 {
		c.Fleet.Core = defaults.Fleet.Core
	}

	if c.Probe.HealthTimeout == 0 {
		c.Probe.HealthTimeout = defaults.Probe.HealthTimeout
	}
	if c.Probe.DialTimeout == 0 {
		c.Probe.DialTimeout = defaults.Probe.DialTimeout
	}
	if c.Probe.StartTimeout == 0 {
		c.Probe.StartTimeout = defaults.Probe.StartTimeout
	}
	if c.Probe.DockerBinary == "" {
		c.Probe.DockerBinary = defaults.Probe.DockerBinary
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// loadFromFile merges a YAML file into the configuration.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Fleet configuration
	if val := os.Getenv("MCPFLEET_COMPOSE_FILE"); val != "" {
		c.Fleet.ComposeFile = val
	}
	if val := os.Getenv("MCPFLEET_PROJECT_NAME"); val != "" {
		c.Fleet.ProjectName = val
	}

	// Probe configuration
	if val := os.Getenv("MCPFLEET_DOCKER_BINARY"); val != "" {
		c.Probe.DockerBinary = val
	}
	if val := os.Getenv("MCPFLEET_HEALTH_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Probe.HealthTimeout = duration
		}
	}
	if val := os.Getenv("MCPFLEET_DIAL_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Probe.DialTimeout = duration
		}
	}
	if val := os.Getenv("MCPFLEET_START_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Probe.StartTimeout = duration
		}
	}

	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("MCPFLEET_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("MCPFLEET_DEBUG"); val == "1" || strings.ToLower(val) == "true" {
		c.Log.Level = "debug"
		c.Log.AddSource = true
	}
}

// Validate checks that the configuration is valid. Fleet structure is
// validated separately through FleetSpec().Validate().
func (c *Config) Validate() error {
	var errs []string

	if c.Fleet.ComposeFile == "" {
		errs = append(errs, "fleet.compose_file must not be empty")
	}
	if c.Fleet.ProjectName == "" {
		errs = append(errs, "fleet.project_name must not be empty")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Probe.HealthTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("probe.health_timeout must be positive, got %v", c.Probe.HealthTimeout))
	}
	if c.Probe.DialTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("probe.dial_timeout must be positive, got %v", c.Probe.DialTimeout))
	}
	if c.Probe.StartTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("probe.start_timeout must be positive, got %v", c.Probe.StartTimeout))
	}
	if c.Probe.DockerBinary == "" {
		errs = append(errs, "probe.docker_binary must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}
