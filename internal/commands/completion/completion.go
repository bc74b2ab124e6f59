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

// Package completion provides shell completion scripts and dynamic
// completion of fleet service names.
package completion

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/shared"
	"github.com/bk918/mcpfleet/internal/config"
	"github.com/bk918/mcpfleet/internal/fleet"
)

// NewCommand creates the completion command for generating shell completion scripts.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "completion [bash|zsh|fish|powershell]",
		Annotations: map[string]string{
			"group": "config",
		},
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for mcpfleet.

To load completions:

Bash:
  # To load completions for the current session:
  $ source <(mcpfleet completion bash)

  # To load completions for each session, save to a completions directory:
  # Linux (system-wide, requires root):
  $ mcpfleet completion bash > /etc/bash_completion.d/mcpfleet
  # Linux (user-local):
  $ mkdir -p ~/.local/share/bash-completion/completions
  $ mcpfleet completion bash > ~/.local/share/bash-completion/completions/mcpfleet
  # macOS (with Homebrew):
  $ mcpfleet completion bash > $(brew --prefix)/etc/bash_completion.d/mcpfleet

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ mcpfleet completion zsh > "${fpath[1]}/_mcpfleet"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ mcpfleet completion fish | source

  # To load completions for each session, execute once:
  $ mcpfleet completion fish > ~/.config/fish/completions/mcpfleet.fish

PowerShell:
  # To load completions for the current session:
  mcpfleet completion powershell | Out-String | Invoke-Expression

  # To load completions for each session, save to a file and source it:
  # Create completions directory if it doesn't exist:
  New-Item -ItemType Directory -Force -Path "$HOME/.config/powershell/completions"
  mcpfleet completion powershell > "$HOME/.config/powershell/completions/mcpfleet.ps1"

  # Then add this line to your $PROFILE (once):
  Get-ChildItem "$HOME/.config/powershell/completions/*.ps1" | ForEach-Object { . $_ }
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE:                  runCompletion,
	}

	return cmd
}

func runCompletion(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "bash":
		return cmd.Root().GenBashCompletion(os.Stdout)
	case "zsh":
		return cmd.Root().GenZshCompletion(os.Stdout)
	case "fish":
		return cmd.Root().GenFishCompletion(os.Stdout, true)
	case "powershell":
		return cmd.Root().GenPowerShellCompletion(os.Stdout)
	}
	return nil
}

// CompleteServiceNames provides dynamic completion for fleet service names.
// Names already present on the command line are not suggested again.
func CompleteServiceNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		fl, err := fleetForCompletion(cmd.Context())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		given := make(map[string]bool, len(args))
		for _, arg := range args {
			given[arg] = true
		}

		var names []string
		for _, spec := range fl.All() {
			if !given[spec.Name] {
				names = append(names, spec.Name)
			}
		}

		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

// fleetForCompletion resolves the fleet the same way commands do, without
// logging. Errors are expected and make the caller fall back to no
// suggestions.
func fleetForCompletion(ctx context.Context) (*fleet.Fleet, error) {
	if path := shared.GetComposeFile(); path != "" {
		return config.FleetFromComposeFile(ctx, path)
	}

	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return nil, err
	}

	return cfg.FleetSpec(), nil
}

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	// Set defaults for panic recovery
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			// Panic recovery - return empty completion (already set above)
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	// Execute the completion function
	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}
