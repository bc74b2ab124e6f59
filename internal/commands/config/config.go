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

// Package config implements the configuration subcommands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/config"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage mcpfleet configuration.

mcpfleet works without a config file: the built-in defaults describe
the standard local fleet. A config file adjusts the fleet layout,
probe timeouts, and logging.

Subcommands:
  show     - Display the effective configuration
  path     - Show config file location
  init     - Write the default configuration to disk
  validate - Check the configuration for problems`,
		Annotations: map[string]string{
			"group": "config",
		},
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newConfigShowCommand().RunE(cmd, args)
	}

	return cmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration after merging built-in
defaults, the config file, and environment variables.

Use --json for machine-readable output.`,
		RunE: runConfigShow,
	}

	return cmd
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path to the configuration file.`,
		RunE:  runConfigPath,
	}

	return cmd
}

// newConfigInitCommand creates the 'config init' subcommand
func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to disk",
		Long: `Write the built-in default configuration to the config file
location so it can be edited.

Refuses to overwrite an existing file unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// effectiveConfigPath resolves the config file path, honoring --config.
func effectiveConfigPath() (string, error) {
	if path := shared.GetConfigPath(); path != "" {
		return path, nil
	}
	return config.ConfigPath()
}

// runConfigShow displays the effective configuration
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfgPath, err := effectiveConfigPath()
	if err != nil {
		return shared.NewInvalidConfigError("cannot determine config path", err)
	}

	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.NewInvalidConfigError("configuration is not usable", err)
	}

	if shared.GetJSON() {
		return outputConfigJSON(cfg)
	}

	_, statErr := os.Stat(cfgPath)
	return outputConfigYAML(cfgPath, os.IsNotExist(statErr), cfg)
}

// runConfigPath displays the config file path
func runConfigPath(cmd *cobra.Command, args []string) error {
	cfgPath, err := effectiveConfigPath()
	if err != nil {
		return shared.NewInvalidConfigError("cannot determine config path", err)
	}

	fmt.Println(cfgPath)
	return nil
}

// runConfigInit writes the default configuration to the config path.
func runConfigInit(force bool) error {
	cfgPath, err := effectiveConfigPath()
	if err != nil {
		return shared.NewInvalidConfigError("cannot determine config path", err)
	}

	if _, err := os.Stat(cfgPath); err == nil && !force {
		return shared.NewInvalidConfigError(
			fmt.Sprintf("config file already exists at %s (use --force to overwrite)", cfgPath), nil)
	}

	data, err := config.Default().YAML()
	if err != nil {
		return shared.NewRuntimeError("cannot render default config", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return shared.NewRuntimeError("cannot create config directory", err)
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return shared.NewRuntimeError("cannot write config file", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(struct {
			shared.JSONResponse
			Path string `json:"path"`
		}{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "config init", Success: true},
			Path:         cfgPath,
		})
	}

	if !shared.GetQuiet() {
		fmt.Println(shared.RenderOK(fmt.Sprintf("Wrote default configuration to %s", cfgPath)))
	}
	return nil
}

// outputConfigJSON outputs config in JSON format
func outputConfigJSON(cfg *config.Config) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

// outputConfigYAML outputs config in YAML format
func outputConfigYAML(path string, missing bool, cfg *config.Config) error {
	if missing {
		fmt.Printf("Configuration: %s (not present, showing defaults)\n", path)
	} else {
		fmt.Printf("Configuration: %s\n", path)
	}
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)

	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return encoder.Close()
}
