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

package up

import (
	"testing"
	"time"

	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/reconcile"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "up" {
		t.Errorf("expected use 'up', got %q", cmd.Use)
	}

	for _, name := range []string{"addon", "timeout", "dry-run"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("%s flag not registered", name)
		}
	}

	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		t.Fatalf("timeout flag: %v", err)
	}
	if timeout != 60*time.Second {
		t.Errorf("default timeout = %v, want 60s", timeout)
	}
}

func TestLaunchSet_StartAll(t *testing.T) {
	fl := fleet.Default()
	decision := &reconcile.Decision{Action: reconcile.ActionStartAll}

	launch := launchSet(fl, decision, false)
	if len(launch) != 3 {
		t.Fatalf("core launch covers %d services, want 3", len(launch))
	}
	for _, spec := range launch {
		if spec.Profile != "" {
			t.Errorf("core launch includes profiled service %s", spec.Name)
		}
	}

	launch = launchSet(fl, decision, true)
	if len(launch) != 4 {
		t.Fatalf("launch with add-on covers %d services, want 4", len(launch))
	}
	if launch[3].Name != "serena" {
		t.Errorf("last service = %s, want serena", launch[3].Name)
	}
}

func TestLaunchSet_StartAddOn(t *testing.T) {
	fl := fleet.Default()
	decision := &reconcile.Decision{Action: reconcile.ActionStartAddOn}

	launch := launchSet(fl, decision, true)
	if len(launch) != 1 {
		t.Fatalf("add-on launch covers %d services, want 1", len(launch))
	}
	if launch[0].Name != "serena" {
		t.Errorf("service = %s, want serena", launch[0].Name)
	}
}

func TestIncludesAddOn(t *testing.T) {
	fl := fleet.Default()

	if includesAddOn(fl.Services(false)) {
		t.Error("core-only launch should not report an add-on")
	}
	if !includesAddOn(fl.Services(true)) {
		t.Error("launch with the add-on should report it")
	}
}

func TestLaunchNames(t *testing.T) {
	fl := fleet.Default()

	got := launchNames(fl.Services(false))
	want := "tavily-mcp,arxiv-mcp,serper-mcp"
	if got != want {
		t.Errorf("names = %q, want %q", got, want)
	}
}

func TestReportStates(t *testing.T) {
	fl := fleet.Default()
	decision := &reconcile.Decision{
		Action: reconcile.ActionSkip,
		Core: []reconcile.ServiceState{
			{Spec: fl.Core[0], Healthy: true, ContainerRunning: true},
			{Spec: fl.Core[1], Healthy: true, ContainerRunning: true},
			{Spec: fl.Core[2], Healthy: false, ContainerRunning: true},
		},
		AddOn: &reconcile.ServiceState{Spec: *fl.AddOn, Healthy: true},
	}

	rows := reportStates(decision)
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0].MCPURL != "http://localhost:3001/mcp" {
		t.Errorf("mcp_url = %q", rows[0].MCPURL)
	}
	if rows[2].Healthy {
		t.Error("unhealthy core service reported healthy")
	}
	if rows[3].Name != "serena" || !rows[3].Healthy {
		t.Errorf("add-on row = %+v", rows[3])
	}
}
