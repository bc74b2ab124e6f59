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

// Package up implements the idempotent fleet launch.
package up

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/config"
	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/log"
	"github.com/bk918/mcpfleet/internal/probe"
	"github.com/bk918/mcpfleet/internal/reconcile"
)

type upOptions struct {
	addon   bool
	timeout time.Duration
	dryRun  bool
}

// NewCommand creates the 'up' command.
func NewCommand() *cobra.Command {
	var opts upOptions

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Launch the MCP fleet",
		Long: `Launch the MCP server fleet through docker compose.

The launch is idempotent: services already answering their health
endpoint are left untouched, and re-running against a healthy fleet
starts nothing. Ports held by processes outside the fleet abort the
launch before any container is created.`,
		Annotations: map[string]string{
			"group": "lifecycle",
		},
		Example: `  # Example 1: Launch the core fleet
  mcpfleet up

  # Example 2: Launch core plus the add-on tier
  mcpfleet up --addon

  # Example 3: See what a launch would do without starting anything
  mcpfleet up --dry-run

  # Example 4: Allow slow containers more startup time
  mcpfleet up --timeout 3m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.addon, "addon", false, "Include the add-on tier in the launch")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", config.DefaultStartTimeout, "How long to wait for started services to become healthy")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Decide what to do but start nothing")

	return cmd
}

func runUp(opts upOptions) error {
	ctx, cancel := shared.WithSignalContext(context.Background())
	defer cancel()

	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}

	runID := uuid.New().String()[:8]
	logger := log.WithRun(rt.Logger, runID)

	if opts.addon && !rt.Fleet.HasAddOn() && !shared.GetQuiet() && !shared.GetJSON() {
		fmt.Println(shared.RenderWarn("fleet defines no add-on service; --addon has no effect"))
	}

	prober := rt.Prober()
	decision := reconcile.New(rt.Fleet, prober).
		WithAddOn(opts.addon).
		WithLogger(logger).
		Decide(ctx)

	switch decision.Action {
	case reconcile.ActionSkip:
		return reportSkip(decision, runID)

	case reconcile.ActionAbortConflict:
		return reportConflict(decision)
	}

	// ActionStartAddOn or ActionStartAll from here on.
	launch := launchSet(rt.Fleet, decision, opts.addon)

	if opts.dryRun {
		return reportDryRun(decision, launch, runID)
	}

	compose := rt.Compose()
	if !compose.Available(ctx) {
		return shared.NewRuntimeError("cannot launch fleet", fleet.ErrDockerNotFound(nil))
	}

	var profiles []string
	var services []string
	if includesAddOn(launch) {
		profiles = []string{rt.Fleet.AddOnProfile()}
	}
	if decision.Action == reconcile.ActionStartAddOn {
		// Narrow the start so compose does not touch the healthy core.
		services = []string{rt.Fleet.AddOn.Name}
	}

	logger.Info("starting services",
		"action", decision.Action.String(),
		"services", launchNames(launch))

	if err := compose.Up(ctx, profiles, services...); err != nil {
		return shared.NewRuntimeError("fleet start failed", fleet.ErrComposeFailed("up", err))
	}

	if err := waitForFleet(ctx, prober, launch, opts.timeout, logger); err != nil {
		if ctx.Err() == context.Canceled {
			return shared.NewRuntimeError("launch interrupted", nil)
		}
		return err
	}

	return reportStarted(decision, launch, runID)
}

// launchSet returns the specs a start covers: the add-on alone for
// ActionStartAddOn, otherwise core plus the add-on when requested.
func launchSet(fl *fleet.Fleet, decision *reconcile.Decision, addon bool) []fleet.ServiceSpec {
	if decision.Action == reconcile.ActionStartAddOn {
		return []fleet.ServiceSpec{*fl.AddOn}
	}
	return fl.Services(addon)
}

func includesAddOn(launch []fleet.ServiceSpec) bool {
	for _, spec := range launch {
		if spec.Profile != "" {
			return true
		}
	}
	return false
}

func launchNames(launch []fleet.ServiceSpec) string {
	names := make([]string, len(launch))
	for i, spec := range launch {
		names[i] = spec.Name
	}
	return strings.Join(names, ",")
}

// waitForFleet blocks until every launched service answers its health
// endpoint. The timeout covers the whole launch, not each service.
func waitForFleet(ctx context.Context, prober *probe.DockerProber, launch []fleet.ServiceSpec, timeout time.Duration, logger *slog.Logger) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	display := !shared.GetQuiet() && !shared.GetJSON()

	for _, spec := range launch {
		sp := shared.NewSpinner()
		if display {
			sp.Start(fmt.Sprintf("Waiting for %s on port %d", spec.Name, spec.Port))
		}

		svcLogger := log.WithService(logger, spec.Name, spec.Port)
		err := prober.WaitHealthyWithCallback(waitCtx, spec, timeout, func(result *probe.HealthResult, attempt int) {
			log.Trace(svcLogger, "health attempt",
				log.Int("attempt", attempt),
				log.Bool("healthy", result.Success))
		})
		elapsed := sp.Stop()

		if err != nil {
			if display {
				fmt.Println(shared.RenderError(fmt.Sprintf("%s did not become healthy", spec.Name)))
			}
			svcLogger.Error("service never became healthy", "timeout", timeout.String())
			return shared.NewUnhealthyError("fleet launch incomplete", fleet.ErrUnhealthyAfterStart(spec.Name, timeout))
		}

		if display {
			fmt.Println(shared.RenderOK(fmt.Sprintf("%-12s healthy after %s", spec.Name, shared.FormatDuration(elapsed))))
		}
		svcLogger.Info("service healthy", log.DurationKey, elapsed.Milliseconds())
	}

	return nil
}

// serviceReport is one service's row in JSON output.
type serviceReport struct {
	Name    string `json:"name"`
	Port    int    `json:"port"`
	MCPURL  string `json:"mcp_url"`
	Healthy bool   `json:"healthy"`
}

// upResponse is the JSON envelope for up results.
type upResponse struct {
	shared.JSONResponse
	Action        string          `json:"action"`
	RunID         string          `json:"run_id"`
	Services      []serviceReport `json:"services,omitempty"`
	ConflictPorts []int           `json:"conflict_ports,omitempty"`
}

func reportSkip(decision *reconcile.Decision, runID string) error {
	if shared.GetJSON() {
		return shared.EmitJSON(upResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "up", Success: true},
			Action:       decision.Action.String(),
			RunID:        runID,
			Services:     reportStates(decision),
		})
	}

	if !shared.GetQuiet() {
		fmt.Println("Fleet already running; nothing to start.")
		printEndpoints(decision)
	}
	return nil
}

func reportConflict(decision *reconcile.Decision) error {
	conflictErr := fleet.ErrPortConflict(decision.ConflictPorts)

	if shared.GetJSON() {
		ports := make([]string, len(decision.ConflictPorts))
		for i, p := range decision.ConflictPorts {
			ports[i] = strconv.Itoa(p)
		}
		_ = shared.EmitJSONError("up", []shared.JSONError{{
			Code:       string(fleet.ErrorCodePortConflict),
			Message:    fmt.Sprintf("ports held by foreign processes: %s", strings.Join(ports, ", ")),
			Suggestion: conflictErr.Suggestion(),
		}})
	}

	return shared.NewPortConflictError("cannot launch fleet", conflictErr)
}

func reportDryRun(decision *reconcile.Decision, launch []fleet.ServiceSpec, runID string) error {
	if shared.GetJSON() {
		resp := upResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "up", Success: true},
			Action:       decision.Action.String(),
			RunID:        runID,
		}
		for _, spec := range launch {
			resp.Services = append(resp.Services, serviceReport{
				Name:   spec.Name,
				Port:   spec.Port,
				MCPURL: spec.MCPURL(),
			})
		}
		return shared.EmitJSON(resp)
	}

	fmt.Println("Dry run: the following services would be started:")
	for _, spec := range launch {
		fmt.Printf("  %s %s (port %d)\n", shared.SymbolInfo, spec.Name, spec.Port)
	}
	fmt.Println("\nRun without --dry-run to launch.")
	return nil
}

func reportStarted(decision *reconcile.Decision, launch []fleet.ServiceSpec, runID string) error {
	if shared.GetJSON() {
		resp := upResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "up", Success: true},
			Action:       decision.Action.String(),
			RunID:        runID,
		}
		for _, spec := range launch {
			resp.Services = append(resp.Services, serviceReport{
				Name:    spec.Name,
				Port:    spec.Port,
				MCPURL:  spec.MCPURL(),
				Healthy: true,
			})
		}
		return shared.EmitJSON(resp)
	}

	if !shared.GetQuiet() {
		fmt.Println()
		fmt.Println(shared.Header.Render("Fleet ready"))
		for _, spec := range launch {
			fmt.Printf("  %s %-12s %s\n", shared.StatusOK.Render(shared.SymbolOK), spec.Name, shared.Muted.Render(spec.MCPURL()))
		}
	}
	return nil
}

// reportStates converts the decision's probe snapshots to JSON rows.
func reportStates(decision *reconcile.Decision) []serviceReport {
	var rows []serviceReport
	for _, state := range decision.Core {
		rows = append(rows, serviceReport{
			Name:    state.Spec.Name,
			Port:    state.Spec.Port,
			MCPURL:  state.Spec.MCPURL(),
			Healthy: state.Healthy,
		})
	}
	if decision.AddOn != nil {
		rows = append(rows, serviceReport{
			Name:    decision.AddOn.Spec.Name,
			Port:    decision.AddOn.Spec.Port,
			MCPURL:  decision.AddOn.Spec.MCPURL(),
			Healthy: decision.AddOn.Healthy,
		})
	}
	return rows
}

// printEndpoints lists the MCP endpoint of every service in the decision.
func printEndpoints(decision *reconcile.Decision) {
	for _, state := range decision.Core {
		fmt.Printf("  %s %-12s %s\n", shared.StatusOK.Render(shared.SymbolOK), state.Spec.Name, shared.Muted.Render(state.Spec.MCPURL()))
	}
	if decision.AddOn != nil && decision.AddOn.Healthy {
		fmt.Printf("  %s %-12s %s\n", shared.StatusOK.Render(shared.SymbolOK), decision.AddOn.Spec.Name, shared.Muted.Render(decision.AddOn.Spec.MCPURL()))
	}
}
