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

package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/bk918/mcpfleet/pkg/errors"
)

// writeRecordingStub writes a fake docker binary that appends its
// arguments to a file and exits with the given code.
func writeRecordingStub(t *testing.T, exitCode int, stderrLine string) (bin, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	bin = filepath.Join(dir, "docker")

	script := fmt.Sprintf("#!/bin/sh\necho \"$@\" >> %q\n", argsFile)
	if stderrLine != "" {
		script += fmt.Sprintf("echo %q >&2\n", stderrLine)
	}
	script += fmt.Sprintf("exit %d\n", exitCode)

	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("writing stub: %v", err)
	}
	return bin, argsFile
}

func recordedArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("reading recorded args: %v", err)
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestComposeRunner_Up(t *testing.T) {
	t.Run("core services", func(t *testing.T) {
		bin, argsFile := writeRecordingStub(t, 0, "")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		if err := runner.Up(context.Background(), nil); err != nil {
			t.Fatalf("Up() error = %v", err)
		}

		lines := recordedArgs(t, argsFile)
		if len(lines) != 1 {
			t.Fatalf("expected 1 invocation, got %d: %v", len(lines), lines)
		}
		want := "compose -f docker-compose.mcp.yml -p mcpfleet up --detach"
		if lines[0] != want {
			t.Errorf("recorded args = %q, want %q", lines[0], want)
		}
	})

	t.Run("add-on profile and service", func(t *testing.T) {
		bin, argsFile := writeRecordingStub(t, 0, "")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		err := runner.Up(context.Background(), []string{"serena"}, "serena")
		if err != nil {
			t.Fatalf("Up() error = %v", err)
		}

		lines := recordedArgs(t, argsFile)
		if !strings.Contains(lines[0], "--profile serena up --detach serena") {
			t.Errorf("recorded args = %q, want profile and service", lines[0])
		}
	})

	t.Run("failure surfaces stderr and exit code", func(t *testing.T) {
		bin, _ := writeRecordingStub(t, 17, "no such service: bogus")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		err := runner.Up(context.Background(), nil, "bogus")
		if err == nil {
			t.Fatal("Up() expected error")
		}

		var cmdErr *pkgerrors.CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected CommandError, got %T: %v", err, err)
		}
		if cmdErr.ExitCode != 17 {
			t.Errorf("ExitCode = %d, want 17", cmdErr.ExitCode)
		}
		if !strings.Contains(cmdErr.Stderr, "no such service: bogus") {
			t.Errorf("Stderr = %q, want compose message", cmdErr.Stderr)
		}
		if !strings.Contains(cmdErr.Command, "up --detach bogus") {
			t.Errorf("Command = %q, want full command line", cmdErr.Command)
		}
	})
}

func TestComposeRunner_Down(t *testing.T) {
	t.Run("with profiles", func(t *testing.T) {
		bin, argsFile := writeRecordingStub(t, 0, "")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		if err := runner.Down(context.Background(), false, "serena"); err != nil {
			t.Fatalf("Down() error = %v", err)
		}

		lines := recordedArgs(t, argsFile)
		if !strings.Contains(lines[0], "--profile serena down") {
			t.Errorf("recorded args = %q, want profile before down", lines[0])
		}
		if strings.Contains(lines[0], "--volumes") {
			t.Errorf("recorded args = %q, unexpected --volumes", lines[0])
		}
	})

	t.Run("with volumes", func(t *testing.T) {
		bin, argsFile := writeRecordingStub(t, 0, "")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		if err := runner.Down(context.Background(), true); err != nil {
			t.Fatalf("Down() error = %v", err)
		}

		lines := recordedArgs(t, argsFile)
		if !strings.HasSuffix(lines[0], "down --volumes") {
			t.Errorf("recorded args = %q, want down --volumes", lines[0])
		}
	})
}

func TestComposeRunner_Logs(t *testing.T) {
	t.Run("flags and services", func(t *testing.T) {
		bin, argsFile := writeRecordingStub(t, 0, "")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		err := runner.Logs(context.Background(), LogsOptions{
			Follow:   true,
			Tail:     50,
			Profiles: []string{"serena"},
			Services: []string{"tavily-mcp"},
		})
		if err != nil {
			t.Fatalf("Logs() error = %v", err)
		}

		lines := recordedArgs(t, argsFile)
		for _, fragment := range []string{"--profile serena", "logs --follow --tail 50 tavily-mcp"} {
			if !strings.Contains(lines[0], fragment) {
				t.Errorf("recorded args = %q, want %q", lines[0], fragment)
			}
		}
	})

	t.Run("streams to configured writers", func(t *testing.T) {
		dir := t.TempDir()
		bin := filepath.Join(dir, "docker")
		script := "#!/bin/sh\necho 'tavily-mcp | listening on 3001'\n"
		if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
			t.Fatalf("writing stub: %v", err)
		}

		var stdout, stderr bytes.Buffer
		runner := NewComposeRunner("docker-compose.mcp.yml").
			WithBinary(bin).
			WithOutput(&stdout, &stderr)

		if err := runner.Logs(context.Background(), LogsOptions{}); err != nil {
			t.Fatalf("Logs() error = %v", err)
		}

		if !strings.Contains(stdout.String(), "listening on 3001") {
			t.Errorf("stdout = %q, want streamed log line", stdout.String())
		}
	})

	t.Run("cancelled follow is not an error", func(t *testing.T) {
		dir := t.TempDir()
		bin := filepath.Join(dir, "docker")
		script := "#!/bin/sh\nsleep 30\n"
		if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
			t.Fatalf("writing stub: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		runner := NewComposeRunner("docker-compose.mcp.yml").
			WithBinary(bin).
			WithOutput(&bytes.Buffer{}, &bytes.Buffer{})

		done := make(chan error, 1)
		go func() {
			done <- runner.Logs(ctx, LogsOptions{Follow: true})
		}()
		cancel()

		if err := <-done; err != nil {
			t.Errorf("Logs() after cancel = %v, want nil", err)
		}
	})
}

func TestComposeRunner_Available(t *testing.T) {
	t.Run("working compose plugin", func(t *testing.T) {
		bin, _ := writeRecordingStub(t, 0, "")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		if !runner.Available(context.Background()) {
			t.Error("Available() = false, want true")
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "docker")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(missing)

		if runner.Available(context.Background()) {
			t.Error("Available() = true, want false")
		}
	})

	t.Run("broken compose plugin", func(t *testing.T) {
		bin, _ := writeRecordingStub(t, 1, "unknown command: compose")
		runner := NewComposeRunner("docker-compose.mcp.yml").WithBinary(bin)

		if runner.Available(context.Background()) {
			t.Error("Available() = true, want false")
		}
	})
}

func TestComposeRunner_WithProjectName(t *testing.T) {
	bin, argsFile := writeRecordingStub(t, 0, "")
	runner := NewComposeRunner("custom.yml").
		WithBinary(bin).
		WithProjectName("testproj")

	if err := runner.Up(context.Background(), nil); err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	lines := recordedArgs(t, argsFile)
	if !strings.Contains(lines[0], "-f custom.yml -p testproj") {
		t.Errorf("recorded args = %q, want custom file and project", lines[0])
	}
}
