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

package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/probe"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "status" {
		t.Errorf("expected use 'status', got %q", cmd.Use)
	}
	if cmd.Annotations["group"] != "observe" {
		t.Errorf("group = %q, want observe", cmd.Annotations["group"])
	}
}

func TestProbeService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing server port: %v", err)
	}

	spec := fleet.ServiceSpec{Name: "probe-me", Port: port, Profile: "extras"}

	// A docker binary that does not exist makes the container probe read false.
	prober := probe.NewDockerProber().WithDockerBinary("/nonexistent-docker-binary")

	got := probeService(context.Background(), prober, spec)

	if !got.Healthy {
		t.Error("expected service to read healthy")
	}
	if !got.PortInUse {
		t.Error("expected port to read in use")
	}
	if got.ContainerRunning {
		t.Error("expected no container to be visible")
	}
	if got.Tier != "add-on" {
		t.Errorf("tier = %q, want add-on", got.Tier)
	}
	if got.MCPURL == "" {
		t.Error("expected mcp_url to be set")
	}
}

func TestProbeService_CoreTierDown(t *testing.T) {
	// A port nobody listens on: bind a listener, note the port, close it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())
	server.Close()

	spec := fleet.ServiceSpec{Name: "core-mcp", Port: port}
	prober := probe.NewDockerProber().WithDockerBinary("/nonexistent-docker-binary")

	got := probeService(context.Background(), prober, spec)

	if got.Healthy || got.PortInUse || got.ContainerRunning {
		t.Errorf("expected all probes false, got %+v", got)
	}
	if got.Tier != "core" {
		t.Errorf("tier = %q, want core", got.Tier)
	}
}

func TestProbeFleet_CoversAllTiers(t *testing.T) {
	fl := fleet.Default()
	prober := probe.NewDockerProber().WithDockerBinary("/nonexistent-docker-binary")

	statuses := probeFleet(context.Background(), prober, fl)

	if len(statuses) != 4 {
		t.Fatalf("statuses = %d, want 4", len(statuses))
	}
	if statuses[0].Name != "tavily-mcp" || statuses[3].Name != "serena" {
		t.Errorf("unexpected order: %s ... %s", statuses[0].Name, statuses[3].Name)
	}
	if statuses[3].Tier != "add-on" {
		t.Errorf("serena tier = %q, want add-on", statuses[3].Tier)
	}
}

func TestRenderHealth(t *testing.T) {
	tests := []struct {
		name   string
		status serviceStatus
		want   string
	}{
		{"healthy", serviceStatus{Healthy: true, ContainerRunning: true, PortInUse: true}, "healthy"},
		{"container up endpoint dead", serviceStatus{ContainerRunning: true}, "unhealthy"},
		{"foreign process on port", serviceStatus{PortInUse: true}, "conflict"},
		{"nothing there", serviceStatus{}, "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderHealth(tt.status)
			if !strings.Contains(got, tt.want) {
				t.Errorf("renderHealth() = %q, want substring %q", got, tt.want)
			}
		})
	}
}
