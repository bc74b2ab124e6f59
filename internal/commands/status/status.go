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

// Package status implements the read-only fleet state view.
package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/probe"
)

// serviceStatus is one service's probe snapshot for display.
type serviceStatus struct {
	Name             string `json:"name"`
	Tier             string `json:"tier"`
	Port             int    `json:"port"`
	ContainerRunning bool   `json:"container_running"`
	Healthy          bool   `json:"healthy"`
	PortInUse        bool   `json:"port_in_use"`
	LatencyMS        int64  `json:"latency_ms,omitempty"`
	MCPURL           string `json:"mcp_url"`
}

// statusResponse is the JSON envelope for status output.
type statusResponse struct {
	shared.JSONResponse
	Services []serviceStatus `json:"services"`
}

// NewCommand creates the 'status' command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet service state",
		Long: `Probe every fleet service and report container state, health, and
port occupancy. Status is read-only: it never starts or stops anything.`,
		Annotations: map[string]string{
			"group": "observe",
		},
		Example: `  # Example 1: Show fleet state
  mcpfleet status

  # Example 2: Machine-readable state for scripts
  mcpfleet status --json

  # Example 3: Extract unhealthy services
  mcpfleet status --json | jq -r '.services[] | select(.healthy | not) | .name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	ctx, cancel := shared.WithSignalContext(context.Background())
	defer cancel()

	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}

	statuses := probeFleet(ctx, rt.Prober(), rt.Fleet)

	if shared.GetJSON() {
		return shared.EmitJSON(statusResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "status", Success: true},
			Services:     statuses,
		})
	}

	renderTable(statuses)
	return nil
}

// probeFleet snapshots every service in the fleet concurrently. The add-on
// is always included here: status reports on the whole deployment.
func probeFleet(ctx context.Context, prober *probe.DockerProber, fl *fleet.Fleet) []serviceStatus {
	specs := fl.All()
	statuses := make([]serviceStatus, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec fleet.ServiceSpec) {
			defer wg.Done()
			statuses[i] = probeService(ctx, prober, spec)
		}(i, spec)
	}
	wg.Wait()

	return statuses
}

func probeService(ctx context.Context, prober *probe.DockerProber, spec fleet.ServiceSpec) serviceStatus {
	tier := "core"
	if spec.Profile != "" {
		tier = "add-on"
	}

	status := serviceStatus{
		Name:   spec.Name,
		Tier:   tier,
		Port:   spec.Port,
		MCPURL: spec.MCPURL(),
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		status.ContainerRunning = prober.ContainerRunning(ctx, spec.Name)
	}()
	go func() {
		defer wg.Done()
		result := prober.CheckHealth(ctx, spec)
		status.Healthy = result.Success
		if result.Success {
			status.LatencyMS = result.ResponseTime.Milliseconds()
		}
	}()
	go func() {
		defer wg.Done()
		status.PortInUse = prober.PortInUse(ctx, spec.Port)
	}()
	wg.Wait()

	return status
}

// renderTable prints the human-readable status table. The styled health
// column sits last so ANSI escapes do not throw off column padding.
func renderTable(statuses []serviceStatus) {
	fmt.Printf("%-14s %-8s %-6s %-10s %-9s %s\n", "SERVICE", "TIER", "PORT", "CONTAINER", "LATENCY", "HEALTH")
	fmt.Println(strings.Repeat("-", 64))

	for _, s := range statuses {
		container := "stopped"
		if s.ContainerRunning {
			container = "running"
		}

		latency := "-"
		if s.Healthy {
			latency = shared.FormatDuration(time.Duration(s.LatencyMS) * time.Millisecond)
		}

		fmt.Printf("%-14s %-8s %-6d %-10s %-9s %s\n",
			s.Name,
			s.Tier,
			s.Port,
			container,
			latency,
			renderHealth(s),
		)
	}
}

// renderHealth maps a snapshot to a styled health label. A busy port with
// no answering endpoint and no fleet container is a conflict: something
// else holds the port.
func renderHealth(s serviceStatus) string {
	switch {
	case s.Healthy:
		return shared.StatusOK.Render(shared.SymbolOK + " healthy")
	case s.ContainerRunning:
		return shared.StatusWarn.Render(shared.SymbolWarn + " unhealthy")
	case s.PortInUse:
		return shared.StatusError.Render(shared.SymbolError + " conflict")
	default:
		return shared.Muted.Render("down")
	}
}
