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

package fleet

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/bk918/mcpfleet/pkg/errors"
)

// FleetError must satisfy the CLI error formatting contract.
var _ pkgerrors.UserVisibleError = (*FleetError)(nil)

func TestErrPortConflict(t *testing.T) {
	err := ErrPortConflict([]int{3001, 3003})

	if err.Code != ErrorCodePortConflict {
		t.Errorf("expected code %s, got %s", ErrorCodePortConflict, err.Code)
	}

	msg := err.Error()
	if !strings.Contains(msg, "3001, 3003") {
		t.Errorf("expected conflicting ports in message, got: %s", msg)
	}

	if got := err.Suggestion(); !strings.Contains(got, "lsof -ti:3001 | xargs kill") {
		t.Errorf("expected kill hint as first suggestion, got: %s", got)
	}

	if !err.IsUserVisible() {
		t.Error("port conflict should be user-visible")
	}
}

func TestErrPortConflict_EmptyPorts(t *testing.T) {
	// Should not panic and should fall back to a placeholder
	err := ErrPortConflict(nil)

	if got := err.Suggestion(); !strings.Contains(got, "<port>") {
		t.Errorf("expected placeholder suggestion for empty port list, got: %s", got)
	}
}

func TestErrUnhealthyAfterStart(t *testing.T) {
	err := ErrUnhealthyAfterStart("tavily-mcp", 60*time.Second)

	if err.Code != ErrorCodeUnhealthy {
		t.Errorf("expected code %s, got %s", ErrorCodeUnhealthy, err.Code)
	}

	msg := err.UserMessage()
	if !strings.Contains(msg, "tavily-mcp") {
		t.Errorf("expected service name in message, got: %s", msg)
	}
	if !strings.Contains(msg, "1m0s") {
		t.Errorf("expected timeout in message, got: %s", msg)
	}

	full := err.Error()
	if !strings.Contains(full, "mcpfleet logs tavily-mcp") {
		t.Errorf("expected logs suggestion, got: %s", full)
	}
}

func TestErrDockerNotFound(t *testing.T) {
	cause := errors.New("exec: \"docker\": executable file not found in $PATH")
	err := ErrDockerNotFound(cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved in chain")
	}

	if !strings.Contains(err.Error(), "docs.docker.com") {
		t.Errorf("expected install suggestion, got: %s", err.Error())
	}
}

func TestErrComposeFailed(t *testing.T) {
	cause := errors.New("network mcpfleet_default not found")
	err := ErrComposeFailed("up", cause)

	if !strings.Contains(err.Message, "docker compose up failed") {
		t.Errorf("unexpected message: %s", err.Message)
	}
	if err.Detail != cause.Error() {
		t.Errorf("expected cause text as detail, got: %s", err.Detail)
	}
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return cause")
	}
}

func TestErrServiceNotFound(t *testing.T) {
	err := ErrServiceNotFound("ghost-mcp")

	if err.Code != ErrorCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrorCodeNotFound, err.Code)
	}
	if !strings.Contains(err.UserMessage(), "ghost-mcp") {
		t.Errorf("expected service name in message, got: %s", err.UserMessage())
	}
}

func TestWrapError(t *testing.T) {
	t.Run("wraps plain errors", func(t *testing.T) {
		cause := errors.New("boom")
		err := WrapError(cause, ErrorCodeComposeFailed, "compose invocation failed")

		if err.Code != ErrorCodeComposeFailed {
			t.Errorf("expected code %s, got %s", ErrorCodeComposeFailed, err.Code)
		}
		if err.Detail != "boom" {
			t.Errorf("expected cause text as detail, got: %s", err.Detail)
		}
		if err.Cause != cause {
			t.Error("expected cause to be attached")
		}
	})

	t.Run("passes through existing FleetError", func(t *testing.T) {
		original := ErrServiceNotFound("ghost-mcp")
		err := WrapError(original, ErrorCodeConfig, "other message")

		if err != original {
			t.Error("expected existing FleetError to pass through unchanged")
		}
	})
}

func TestGetFleetError(t *testing.T) {
	t.Run("extracts FleetError", func(t *testing.T) {
		original := ErrPortConflict([]int{3002})
		if got := GetFleetError(original); got != original {
			t.Error("expected GetFleetError to return the error")
		}
	})

	t.Run("returns nil for plain errors", func(t *testing.T) {
		if got := GetFleetError(errors.New("plain")); got != nil {
			t.Errorf("expected nil for plain error, got: %v", got)
		}
	})
}

func TestFleetError_ErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("reconciling fleet: %w", ErrPortConflict([]int{3001}))

	var fleetErr *FleetError
	if !errors.As(wrapped, &fleetErr) {
		t.Fatal("errors.As should find FleetError in wrapped chain")
	}
	if fleetErr.Code != ErrorCodePortConflict {
		t.Errorf("expected code %s, got %s", ErrorCodePortConflict, fleetErr.Code)
	}
}
