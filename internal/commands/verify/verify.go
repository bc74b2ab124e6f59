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

// Package verify implements MCP protocol verification of running services.
// Where 'status' only checks health endpoints, 'verify' performs a full MCP
// handshake against each service and lists the tools it exposes.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/completion"
	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/log"
)

// DefaultHandshakeTimeout bounds a single service's initialize plus tools
// listing. Services answer well under a second when healthy.
const DefaultHandshakeTimeout = 15 * time.Second

type verifyOptions struct {
	timeout time.Duration
}

// NewCommand creates the 'verify' command.
func NewCommand() *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify [service...]",
		Short: "Verify services speak MCP",
		Long: `Verify running services by performing a full MCP handshake.

Each service's /mcp endpoint receives an initialize request followed by
a tools listing. A service that answers its health endpoint but cannot
complete the handshake is reported as failed.

Without arguments every running service is verified and stopped ones
are skipped. Naming services verifies exactly those, and a named
service that is not running counts as a failure.`,
		Annotations: map[string]string{
			"group": "observe",
		},
		Example: `  # Example 1: Verify every running service
  mcpfleet verify

  # Example 2: Verify a single service
  mcpfleet verify tavily-mcp

  # Example 3: Machine-readable results with tool names
  mcpfleet verify --json`,
		Args:              cobra.ArbitraryArgs,
		ValidArgsFunction: completion.CompleteServiceNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.timeout, "timeout", DefaultHandshakeTimeout, "Timeout for each service's handshake")

	return cmd
}

func runVerify(args []string, opts verifyOptions) error {
	ctx, cancel := shared.WithSignalContext(context.Background())
	defer cancel()

	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}

	logger := log.WithComponent(rt.Logger, "verify")

	targets, err := resolveTargets(rt.Fleet, args)
	if err != nil {
		return err
	}

	display := !shared.GetQuiet() && !shared.GetJSON()
	if display {
		fmt.Println(shared.Header.Render("MCP verification"))
		fmt.Println()
	}

	prober := rt.Prober()
	explicit := len(args) > 0

	rows := make([]*serviceVerification, 0, len(targets))
	for _, spec := range targets {
		var row *serviceVerification

		if !prober.Healthy(ctx, spec) {
			row = &serviceVerification{Name: spec.Name, Port: spec.Port, MCPURL: spec.MCPURL()}
			if explicit {
				row.Error = "service is not answering its health endpoint"
			} else {
				row.Skipped = true
			}
		} else {
			row = handshake(ctx, spec, opts.timeout)
		}

		logRow(logger, row)
		if display {
			fmt.Println(renderRow(row))
		}
		rows = append(rows, row)
	}

	return report(rows)
}

// resolveTargets maps service name arguments to fleet specs, defaulting to
// the whole fleet when no names are given.
func resolveTargets(fl *fleet.Fleet, args []string) ([]fleet.ServiceSpec, error) {
	all := fl.All()
	if len(args) == 0 {
		return all, nil
	}

	byName := make(map[string]fleet.ServiceSpec, len(all))
	for _, spec := range all {
		byName[spec.Name] = spec
	}

	targets := make([]fleet.ServiceSpec, 0, len(args))
	for _, name := range args {
		spec, ok := byName[name]
		if !ok {
			return nil, shared.NewRuntimeError("cannot verify", fleet.ErrServiceNotFound(name))
		}
		targets = append(targets, spec)
	}
	return targets, nil
}

// handshake runs initialize plus tools/list against one service's MCP
// endpoint and records what the server reported.
func handshake(ctx context.Context, spec fleet.ServiceSpec, timeout time.Duration) *serviceVerification {
	row := &serviceVerification{Name: spec.Name, Port: spec.Port, MCPURL: spec.MCPURL()}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mcpClient, err := client.NewStreamableHttpClient(spec.MCPURL())
	if err != nil {
		row.Error = fmt.Sprintf("create client: %v", err)
		return row
	}
	defer mcpClient.Close()

	if err := mcpClient.Start(ctx); err != nil {
		row.Error = fmt.Sprintf("connect: %v", err)
		return row
	}

	version, _, _ := shared.GetVersion()
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "mcpfleet",
				Version: version,
			},
		},
	}

	initResult, err := mcpClient.Initialize(ctx, initReq)
	if err != nil {
		row.Error = fmt.Sprintf("initialize: %v", err)
		return row
	}
	row.ProtocolVersion = initResult.ProtocolVersion
	row.ServerName = initResult.ServerInfo.Name
	row.ServerVersion = initResult.ServerInfo.Version

	toolsResult, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		row.Error = fmt.Sprintf("list tools: %v", err)
		return row
	}
	for _, tool := range toolsResult.Tools {
		row.Tools = append(row.Tools, tool.Name)
	}

	row.Verified = true
	return row
}

// serviceVerification is one service's handshake result.
type serviceVerification struct {
	Name            string   `json:"name"`
	Port            int      `json:"port"`
	MCPURL          string   `json:"mcp_url"`
	Verified        bool     `json:"verified"`
	Skipped         bool     `json:"skipped,omitempty"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	ServerName      string   `json:"server_name,omitempty"`
	ServerVersion   string   `json:"server_version,omitempty"`
	Tools           []string `json:"tools,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// verifyResponse is the JSON envelope for verify results.
type verifyResponse struct {
	shared.JSONResponse
	Services []*serviceVerification `json:"services"`
	Verified int                    `json:"verified"`
	Failed   int                    `json:"failed"`
	Skipped  int                    `json:"skipped"`
}

func logRow(logger *slog.Logger, row *serviceVerification) {
	svcLogger := log.WithService(logger, row.Name, row.Port)
	switch {
	case row.Verified:
		svcLogger.Info("service verified",
			"protocol_version", row.ProtocolVersion,
			"server", row.ServerName,
			"tools", len(row.Tools))
	case row.Skipped:
		svcLogger.Debug("service not running, skipping verification")
	default:
		svcLogger.Warn("verification failed", "reason", row.Error)
	}
}

func renderRow(row *serviceVerification) string {
	switch {
	case row.Verified:
		detail := fmt.Sprintf("%s %s, protocol %s, %d tools",
			row.ServerName, row.ServerVersion, row.ProtocolVersion, len(row.Tools))
		line := fmt.Sprintf("  %s %-12s %s", shared.StatusOK.Render(shared.SymbolOK), row.Name, detail)
		if shared.GetVerbose() && len(row.Tools) > 0 {
			line += "\n" + shared.Muted.Render(fmt.Sprintf("    tools: %v", row.Tools))
		}
		return line
	case row.Skipped:
		return fmt.Sprintf("  %s %-12s %s", shared.Muted.Render(shared.SymbolInfo), row.Name, shared.Muted.Render("skipped: not running"))
	default:
		return fmt.Sprintf("  %s %-12s %s", shared.StatusError.Render(shared.SymbolError), row.Name, row.Error)
	}
}

func report(rows []*serviceVerification) error {
	var verified, failed, skipped int
	var firstFailure *serviceVerification
	for _, row := range rows {
		switch {
		case row.Verified:
			verified++
		case row.Skipped:
			skipped++
		default:
			failed++
			if firstFailure == nil {
				firstFailure = row
			}
		}
	}

	if shared.GetJSON() {
		resp := verifyResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "verify", Success: failed == 0},
			Services:     rows,
			Verified:     verified,
			Failed:       failed,
			Skipped:      skipped,
		}
		if err := shared.EmitJSON(resp); err != nil {
			return err
		}
	} else if !shared.GetQuiet() {
		fmt.Printf("\n%d verified, %d failed, %d skipped\n", verified, failed, skipped)
	}

	if failed > 0 {
		return shared.NewUnhealthyError("fleet verification failed",
			fleet.ErrVerifyFailed(firstFailure.Name, errors.New(firstFailure.Error)))
	}
	return nil
}
