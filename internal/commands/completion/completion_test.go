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

package completion

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bk918/mcpfleet/internal/commands/shared"
)

// useTestConfig points the global config flag at a file with a known
// fleet for the duration of the test.
func useTestConfig(t *testing.T) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `fleet:
  core:
    - name: tavily-mcp
      port: 3001
    - name: arxiv-mcp
      port: 3002
    - name: serper-mcp
      port: 3003
  addon:
    name: serena
    port: 9121
    profile: serena
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	shared.SetConfigPathForTest(path)
	shared.SetComposeFileForTest("")
	t.Cleanup(func() {
		shared.SetConfigPathForTest("")
	})
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "completion [bash|zsh|fish|powershell]" {
		t.Errorf("Expected Use 'completion [bash|zsh|fish|powershell]', got %q", cmd.Use)
	}

	if len(cmd.ValidArgs) != 4 {
		t.Errorf("Expected 4 valid args, got %d", len(cmd.ValidArgs))
	}
}

func TestCompleteServiceNames(t *testing.T) {
	useTestConfig(t)

	cmd := &cobra.Command{}
	names, directive := CompleteServiceNames(cmd, nil, "")

	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("Expected NoFileComp directive, got %v", directive)
	}

	for _, want := range []string{"tavily-mcp", "arxiv-mcp", "serper-mcp", "serena"} {
		if !slices.Contains(names, want) {
			t.Errorf("Expected %q in completions, got %v", want, names)
		}
	}
}

func TestCompleteServiceNames_ExcludesGiven(t *testing.T) {
	useTestConfig(t)

	cmd := &cobra.Command{}
	names, _ := CompleteServiceNames(cmd, []string{"tavily-mcp", "serena"}, "")

	if slices.Contains(names, "tavily-mcp") {
		t.Errorf("Expected tavily-mcp to be excluded, got %v", names)
	}
	if slices.Contains(names, "serena") {
		t.Errorf("Expected serena to be excluded, got %v", names)
	}
	if !slices.Contains(names, "arxiv-mcp") {
		t.Errorf("Expected arxiv-mcp in completions, got %v", names)
	}
}

func TestSafeCompletionWrapper_Success(t *testing.T) {
	fn := func() ([]string, cobra.ShellCompDirective) {
		return []string{"result1", "result2"}, cobra.ShellCompDirectiveNoFileComp
	}

	results, directive := SafeCompletionWrapper(fn)
	if len(results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(results))
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("Expected NoFileComp directive, got %v", directive)
	}
}

func TestSafeCompletionWrapper_Panic(t *testing.T) {
	fn := func() ([]string, cobra.ShellCompDirective) {
		panic("test panic")
	}

	results, directive := SafeCompletionWrapper(fn)
	if len(results) != 0 {
		t.Errorf("Expected empty results on panic, got %d results", len(results))
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("Expected NoFileComp directive on panic, got %v", directive)
	}
}

func TestSafeCompletionWrapper_NilResults(t *testing.T) {
	fn := func() ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveDefault
	}

	results, directive := SafeCompletionWrapper(fn)
	if len(results) != 0 {
		t.Errorf("Expected empty results for nil return, got %d results", len(results))
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("Expected NoFileComp directive, got %v", directive)
	}
}
