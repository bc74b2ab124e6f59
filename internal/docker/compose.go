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

// Package docker drives the docker compose CLI for the fleet.
package docker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/log"
	pkgerrors "github.com/bk918/mcpfleet/pkg/errors"
)

// DefaultBinary is the container runtime binary invoked for compose commands.
const DefaultBinary = "docker"

// ComposeRunner executes docker compose commands against one compose file.
// All state-changing fleet operations go through it.
type ComposeRunner struct {
	binary      string
	composeFile string
	projectName string
	logger      *slog.Logger
	stdout      io.Writer
	stderr      io.Writer
}

// NewComposeRunner creates a runner for the given compose file.
func NewComposeRunner(composeFile string) *ComposeRunner {
	return &ComposeRunner{
		binary:      DefaultBinary,
		composeFile: composeFile,
		projectName: fleet.DefaultProjectName,
		logger:      slog.Default(),
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

// WithBinary overrides the runtime binary. Used in tests.
func (c *ComposeRunner) WithBinary(binary string) *ComposeRunner {
	c.binary = binary
	return c
}

// WithProjectName overrides the compose project name.
func (c *ComposeRunner) WithProjectName(name string) *ComposeRunner {
	c.projectName = name
	return c
}

// WithLogger sets the logger for command tracing.
func (c *ComposeRunner) WithLogger(logger *slog.Logger) *ComposeRunner {
	if logger != nil {
		c.logger = log.WithComponent(logger, "compose")
	}
	return c
}

// WithOutput redirects streamed command output, which otherwise goes to
// the process stdout and stderr.
func (c *ComposeRunner) WithOutput(stdout, stderr io.Writer) *ComposeRunner {
	c.stdout = stdout
	c.stderr = stderr
	return c
}

// Available reports whether the runtime binary is on PATH with a working
// compose plugin.
func (c *ComposeRunner) Available(ctx context.Context) bool {
	if _, err := exec.LookPath(c.binary); err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, c.binary, "compose", "version")
	return cmd.Run() == nil
}

// Up starts services detached. Profiles activate optional tiers; naming
// services narrows the start to just those, otherwise every active
// service comes up. Starting services that already run is a no-op for
// compose, so Up is safe to repeat.
func (c *ComposeRunner) Up(ctx context.Context, profiles []string, services ...string) error {
	args := c.composeArgs(profiles, "up", "--detach")
	args = append(args, services...)
	return c.run(ctx, args)
}

// Down stops and removes the fleet containers. Profiles must cover every
// tier that may be running, or compose leaves profiled containers behind.
func (c *ComposeRunner) Down(ctx context.Context, removeVolumes bool, profiles ...string) error {
	args := c.composeArgs(profiles, "down")
	if removeVolumes {
		args = append(args, "--volumes")
	}
	return c.run(ctx, args)
}

// LogsOptions controls log streaming.
type LogsOptions struct {
	// Follow keeps streaming until the context is cancelled.
	Follow bool

	// Tail limits output to the last N lines per service (0 = all).
	Tail int

	// Profiles to activate, so profiled services are visible to compose.
	Profiles []string

	// Services narrows output to the named services (empty = all).
	Services []string
}

// Logs streams service logs to the configured output writers.
func (c *ComposeRunner) Logs(ctx context.Context, opts LogsOptions) error {
	args := c.composeArgs(opts.Profiles, "logs")
	if opts.Follow {
		args = append(args, "--follow")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	args = append(args, opts.Services...)

	c.logger.Debug("streaming compose logs", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr

	if err := cmd.Run(); err != nil {
		// Cancellation ends a follow; that is not a failure.
		if ctx.Err() != nil {
			return nil
		}
		return c.commandError(args, err, "")
	}
	return nil
}

// composeArgs builds the shared argument prefix for a compose subcommand.
func (c *ComposeRunner) composeArgs(profiles []string, rest ...string) []string {
	args := []string{"compose", "-f", c.composeFile}
	if c.projectName != "" {
		args = append(args, "-p", c.projectName)
	}
	for _, p := range profiles {
		args = append(args, "--profile", p)
	}
	return append(args, rest...)
}

// run executes a compose command with captured output.
func (c *ComposeRunner) run(ctx context.Context, args []string) error {
	c.logger.Debug("running compose command", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		return c.commandError(args, err, stderr.String())
	}

	c.logger.Debug("compose command finished",
		log.DurationKey, time.Since(start).Milliseconds())
	return nil
}

func (c *ComposeRunner) commandError(args []string, err error, stderr string) error {
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	return &pkgerrors.CommandError{
		Command:  c.binary + " " + strings.Join(args, " "),
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Cause:    err,
	}
}
