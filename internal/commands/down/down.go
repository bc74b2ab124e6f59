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

// Package down implements fleet teardown.
package down

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/fleet"
)

type downOptions struct {
	volumes bool
}

// NewCommand creates the 'down' command.
func NewCommand() *cobra.Command {
	var opts downOptions

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the MCP fleet",
		Long: `Stop and remove all fleet containers, including the add-on tier.

Volumes are preserved unless --volumes is given.`,
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		Example: `  # Example 1: Stop the fleet
  mcpfleet down

  # Example 2: Stop the fleet and remove its volumes
  mcpfleet down --volumes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDown(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.volumes, "volumes", false, "Remove named volumes declared in the compose file")

	return cmd
}

func runDown(opts downOptions) error {
	ctx, cancel := shared.WithSignalContext(context.Background())
	defer cancel()

	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}

	compose := rt.Compose()
	if !compose.Available(ctx) {
		return shared.NewRuntimeError("cannot stop fleet", fleet.ErrDockerNotFound(nil))
	}

	// The add-on profile is always activated on teardown so profiled
	// containers stop along with the core.
	var profiles []string
	if profile := rt.Fleet.AddOnProfile(); profile != "" {
		profiles = append(profiles, profile)
	}

	rt.Logger.Info("stopping fleet", "volumes", opts.volumes)

	if err := compose.Down(ctx, opts.volumes, profiles...); err != nil {
		return shared.NewRuntimeError("fleet stop failed", fleet.ErrComposeFailed("down", err))
	}

	if shared.GetJSON() {
		return shared.EmitJSON(struct {
			shared.JSONResponse
			VolumesRemoved bool `json:"volumes_removed"`
		}{
			JSONResponse:   shared.JSONResponse{Version: "1.0", Command: "down", Success: true},
			VolumesRemoved: opts.volumes,
		})
	}

	if !shared.GetQuiet() {
		fmt.Println(shared.RenderOK("Fleet stopped"))
	}
	return nil
}
