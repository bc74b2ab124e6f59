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

// Package logs streams fleet container logs.
package logs

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/completion"
	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/docker"
	"github.com/bk918/mcpfleet/internal/fleet"
)

type logsOptions struct {
	follow bool
	tail   int
}

// NewCommand creates the 'logs' command.
func NewCommand() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:     "logs [service...]",
		Aliases: []string{"log"},
		Short:   "Show container logs",
		Long: `Show logs from fleet containers. With no arguments, logs from every
service are shown, including the add-on tier.`,
		Annotations: map[string]string{
			"group": "observe",
		},
		Example: `  # Example 1: Show all fleet logs
  mcpfleet logs

  # Example 2: Follow one service
  mcpfleet logs tavily-mcp --follow

  # Example 3: Show the last 100 lines of two services
  mcpfleet logs tavily-mcp serper-mcp --tail 100`,
		ValidArgsFunction: completion.CompleteServiceNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVar(&opts.tail, "tail", 0, "Number of lines to show from the end of each log")

	return cmd
}

func runLogs(services []string, opts logsOptions) error {
	ctx, cancel := shared.WithSignalContext(context.Background())
	defer cancel()

	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}

	// Reject names outside the fleet before invoking compose, so typos get
	// a suggestion instead of a compose error.
	known := make(map[string]bool)
	for _, spec := range rt.Fleet.All() {
		known[spec.Name] = true
	}
	for _, name := range services {
		if !known[name] {
			return shared.NewRuntimeError("cannot show logs", fleet.ErrServiceNotFound(name))
		}
	}

	compose := rt.Compose()
	if !compose.Available(ctx) {
		return shared.NewRuntimeError("cannot show logs", fleet.ErrDockerNotFound(nil))
	}

	logsOpts := docker.LogsOptions{
		Follow:   opts.follow,
		Tail:     opts.tail,
		Services: services,
	}
	if profile := rt.Fleet.AddOnProfile(); profile != "" {
		logsOpts.Profiles = []string{profile}
	}

	if err := compose.Logs(ctx, logsOpts); err != nil {
		return shared.NewRuntimeError("log streaming failed", fleet.ErrComposeFailed("logs", err))
	}

	return nil
}
