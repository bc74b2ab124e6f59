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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/config"
	"github.com/bk918/mcpfleet/internal/fleet"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long: `Validate the configuration file and the fleet it describes.

Checks performed:
  - YAML syntax and structure
  - Service names, ports, and profile assignments
  - The compose file exists and defines every fleet service
  - Published ports in the compose file match the fleet
  - Probe timeout sanity

With --strict, warnings are treated as errors.`,
		Example: `  # Example 1: Validate configuration
  mcpfleet config validate

  # Example 2: Validate with warnings as errors
  mcpfleet config validate --strict

  # Example 3: Get validation result as JSON
  mcpfleet config validate --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// runValidate performs configuration validation.
func runValidate(strict bool) error {
	cfgPath, err := effectiveConfigPath()
	if err != nil {
		return shared.NewInvalidConfigError("cannot determine config path", err)
	}

	explicit := shared.GetConfigPath() != ""
	_, statErr := os.Stat(cfgPath)
	missing := os.IsNotExist(statErr)

	// An explicitly named config file must exist. The default location
	// is allowed to be empty because the built-in defaults are complete.
	if missing && explicit {
		return outputValidationResult(ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Config file not found: %s", cfgPath)},
		}, strict)
	}

	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return outputValidationResult(ValidationResult{
			Valid:  false,
			Errors: []string{err.Error()},
		}, strict)
	}

	result := validateConfig(cfg)
	if missing {
		warning := fmt.Sprintf("No config file at %s; built-in defaults are in effect.", cfgPath)
		result.Warnings = append([]string{warning}, result.Warnings...)
	}

	return outputValidationResult(result, strict)
}

// validateConfig checks what the loader cannot see: the compose file on
// disk and how it lines up with the configured fleet. Structural problems
// never reach here because Load rejects them.
func validateConfig(cfg *config.Config) ValidationResult {
	var errors []string
	var warnings []string

	if cfg.Probe.StartTimeout < cfg.Probe.HealthTimeout {
		warnings = append(warnings, fmt.Sprintf(
			"probe.start_timeout (%v) is shorter than probe.health_timeout (%v); launches may time out after a single probe",
			cfg.Probe.StartTimeout, cfg.Probe.HealthTimeout))
	}

	if cfg.Fleet.AddOn == nil {
		warnings = append(warnings, "No add-on service configured; 'mcpfleet up --addon' will have no effect.")
	}

	if _, err := os.Stat(cfg.Fleet.ComposeFile); os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf(
			"Compose file not found: %s. 'mcpfleet up' needs it to start containers.", cfg.Fleet.ComposeFile))
	} else {
		errs, warns := crossCheckCompose(cfg)
		errors = append(errors, errs...)
		warnings = append(warnings, warns...)
	}

	return ValidationResult{
		Valid:    len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
	}
}

// crossCheckCompose verifies every fleet service is defined in the compose
// file with a matching published port and profile.
func crossCheckCompose(cfg *config.Config) (errors, warnings []string) {
	composeFleet, err := config.FleetFromComposeFile(context.Background(), cfg.Fleet.ComposeFile)
	if err != nil {
		errors = append(errors, fmt.Sprintf("Compose file %s is not usable: %v", cfg.Fleet.ComposeFile, err))
		return errors, warnings
	}

	defined := make(map[string]fleet.ServiceSpec)
	for _, spec := range composeFleet.All() {
		defined[spec.Name] = spec
	}

	for _, spec := range cfg.FleetSpec().All() {
		composeSpec, ok := defined[spec.Name]
		if !ok {
			errors = append(errors, fmt.Sprintf("Service %q is not defined in %s", spec.Name, cfg.Fleet.ComposeFile))
			continue
		}
		if composeSpec.Port != spec.Port {
			errors = append(errors, fmt.Sprintf("Service %q publishes port %d in %s but the fleet expects %d",
				spec.Name, composeSpec.Port, cfg.Fleet.ComposeFile, spec.Port))
		}
		if composeSpec.Profile != spec.Profile {
			warnings = append(warnings, fmt.Sprintf("Service %q has profile %q in %s but %q in the fleet",
				spec.Name, composeSpec.Profile, cfg.Fleet.ComposeFile, spec.Profile))
		}
		delete(defined, spec.Name)
	}

	var extra []string
	for name := range defined {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		warnings = append(warnings, fmt.Sprintf("Compose file defines %q which is not part of the fleet", name))
	}

	return errors, warnings
}

// outputValidationResult outputs the validation result and maps failures to
// the invalid-config exit code.
func outputValidationResult(result ValidationResult, strict bool) error {
	if shared.GetJSON() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else {
		if result.Valid {
			fmt.Println(shared.RenderOK("Configuration is valid"))
		} else {
			fmt.Println(shared.RenderError("Configuration validation failed"))
		}
		fmt.Println()

		if len(result.Errors) > 0 {
			fmt.Println(shared.Header.Render("Errors:"))
			for _, err := range result.Errors {
				fmt.Printf("  %s %s\n", shared.StatusError.Render(shared.SymbolError), err)
			}
			fmt.Println()
		}

		if len(result.Warnings) > 0 {
			fmt.Println(shared.Header.Render("Warnings:"))
			for _, warn := range result.Warnings {
				fmt.Printf("  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), warn)
			}
			fmt.Println()
		}

		if result.Valid && len(result.Warnings) == 0 {
			fmt.Println("No issues found.")
		}
	}

	if !result.Valid {
		return shared.NewInvalidConfigError("configuration validation failed", nil)
	}

	if strict && len(result.Warnings) > 0 {
		if !shared.GetJSON() {
			fmt.Println("Validation failed (strict mode: warnings treated as errors)")
		}
		return shared.NewInvalidConfigError("configuration has warnings and --strict is set", nil)
	}

	return nil
}
