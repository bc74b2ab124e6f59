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

package shared

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bk918/mcpfleet/internal/config"
	"github.com/bk918/mcpfleet/internal/docker"
	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/log"
	"github.com/bk918/mcpfleet/internal/probe"
)

// Runtime bundles what every fleet command needs: the effective
// configuration, the fleet it describes, and a logger honoring the
// global flags.
type Runtime struct {
	Config *config.Config
	Fleet  *fleet.Fleet
	Logger *slog.Logger
}

// NewRuntime loads configuration and resolves the fleet. A --compose-file
// override derives the fleet from that file instead of the configured one.
// Configuration problems map to the invalid-config exit code.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewInvalidConfigError("configuration is not usable", err)
	}

	fl := cfg.FleetSpec()
	if path := GetComposeFile(); path != "" {
		fl, err = config.FleetFromComposeFile(ctx, path)
		if err != nil {
			return nil, NewInvalidConfigError("cannot derive fleet from compose file", err)
		}
		cfg.Fleet.ComposeFile = path
	}

	return &Runtime{
		Config: cfg,
		Fleet:  fl,
		Logger: log.New(loggerConfig(cfg)),
	}, nil
}

// loggerConfig resolves the log level from config and the global flags.
// --quiet and --verbose win over the configured level.
func loggerConfig(cfg *config.Config) *log.Config {
	level := cfg.Log.Level
	if GetVerbose() {
		level = "debug"
	}
	if GetQuiet() {
		level = "error"
	}

	return &log.Config{
		Level:     level,
		Format:    log.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}
}

// Prober builds a service prober with the configured timeouts.
func (r *Runtime) Prober() *probe.DockerProber {
	return probe.NewDockerProber().
		WithHTTPClient(&http.Client{Timeout: r.Config.Probe.HealthTimeout}).
		WithDialTimeout(r.Config.Probe.DialTimeout).
		WithDockerBinary(r.Config.Probe.DockerBinary)
}

// Compose builds a compose runner for the resolved fleet definition.
func (r *Runtime) Compose() *docker.ComposeRunner {
	return docker.NewComposeRunner(r.Config.Fleet.ComposeFile).
		WithBinary(r.Config.Probe.DockerBinary).
		WithProjectName(r.Config.Fleet.ProjectName).
		WithLogger(r.Logger)
}

// WithSignalContext returns a context cancelled on SIGINT or SIGTERM, so
// long waits and log follows stop cleanly on Ctrl-C.
func WithSignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
