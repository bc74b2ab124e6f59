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

// Package fleet defines the fixed set of MCP server containers that mcpfleet
// manages.
//
// A fleet has two tiers: the core services every launch requires, and one
// optional add-on service activated through a compose profile. Specs are
// static configuration; nothing in this package touches the network or the
// container runtime.
package fleet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidFleet is returned when fleet validation fails.
	ErrInvalidFleet = errors.New("fleet: invalid service set")
)

const (
	// DefaultComposeFile is the compose file that defines the fleet.
	DefaultComposeFile = "docker-compose.mcp.yml"

	// DefaultProjectName is the compose project name.
	DefaultProjectName = "mcpfleet"

	// DefaultHealthPath is the HTTP health endpoint path served by every
	// fleet container.
	DefaultHealthPath = "/health"

	// DefaultMCPPath is the streamable HTTP MCP endpoint path.
	DefaultMCPPath = "/mcp"
)

// serviceNamePattern matches valid compose service / container names.
var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ServiceSpec describes one MCP server container in the fleet.
// Specs are immutable once loaded; probing never mutates them.
type ServiceSpec struct {
	// Name is the compose service name, which is also the container name.
	Name string `yaml:"name" json:"name"`

	// Port is the published host port the server listens on.
	Port int `yaml:"port" json:"port"`

	// HealthPath is the HTTP health endpoint path.
	// Default: /health
	HealthPath string `yaml:"health_path,omitempty" json:"health_path,omitempty"`

	// MCPPath is the streamable HTTP MCP endpoint path.
	// Default: /mcp
	MCPPath string `yaml:"mcp_path,omitempty" json:"mcp_path,omitempty"`

	// Profile is the compose profile that activates this service.
	// Empty for core services.
	Profile string `yaml:"profile,omitempty" json:"profile,omitempty"`
}

// HealthURL returns the absolute URL of the service health endpoint.
func (s ServiceSpec) HealthURL() string {
	path := s.HealthPath
	if path == "" {
		path = DefaultHealthPath
	}
	return fmt.Sprintf("http://localhost:%d%s", s.Port, path)
}

// MCPURL returns the absolute URL of the service MCP endpoint.
func (s ServiceSpec) MCPURL() string {
	path := s.MCPPath
	if path == "" {
		path = DefaultMCPPath
	}
	return fmt.Sprintf("http://localhost:%d%s", s.Port, path)
}

// Addr returns the loopback dial address for TCP port probing.
func (s ServiceSpec) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Port)
}

// Fleet is the full managed deployment: the core tier plus an optional
// add-on service.
type Fleet struct {
	Core  []ServiceSpec
	AddOn *ServiceSpec
}

// Default returns the standard local MCP fleet: three core search/research
// servers plus the Serena tooling server as the add-on.
func Default() *Fleet {
	return &Fleet{
		Core: []ServiceSpec{
			{Name: "tavily-mcp", Port: 3001, HealthPath: DefaultHealthPath, MCPPath: DefaultMCPPath},
			{Name: "arxiv-mcp", Port: 3002, HealthPath: DefaultHealthPath, MCPPath: DefaultMCPPath},
			{Name: "serper-mcp", Port: 3003, HealthPath: DefaultHealthPath, MCPPath: DefaultMCPPath},
		},
		AddOn: &ServiceSpec{
			Name:       "serena",
			Port:       9121,
			HealthPath: DefaultHealthPath,
			MCPPath:    DefaultMCPPath,
			Profile:    "serena",
		},
	}
}

// Services returns the specs covered by a launch: the core tier always, the
// add-on only when requested.
func (f *Fleet) Services(includeAddOn bool) []ServiceSpec {
	specs := make([]ServiceSpec, 0, len(f.Core)+1)
	specs = append(specs, f.Core...)
	if includeAddOn && f.AddOn != nil {
		specs = append(specs, *f.AddOn)
	}
	return specs
}

// All returns every spec in the fleet, core tier first.
func (f *Fleet) All() []ServiceSpec {
	return f.Services(true)
}

// HasAddOn reports whether the fleet defines an add-on service.
func (f *Fleet) HasAddOn() bool {
	return f.AddOn != nil
}

// AddOnProfile returns the compose profile that activates the add-on tier,
// or empty when the fleet has none.
func (f *Fleet) AddOnProfile() string {
	if f.AddOn == nil {
		return ""
	}
	return f.AddOn.Profile
}

// Validate checks the fleet for structural problems: empty tiers, invalid
// names or ports, duplicate names or ports across tiers, and profile
// misplacement (core services must not carry a profile, the add-on must).
func (f *Fleet) Validate() error {
	var errs []string

	if len(f.Core) == 0 {
		errs = append(errs, "core tier must contain at least one service")
	}

	seenNames := make(map[string]bool)
	seenPorts := make(map[int]string)

	check := func(tier string, s ServiceSpec) {
		label := fmt.Sprintf("%s service %q", tier, s.Name)

		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("%s tier contains a service with no name", tier))
			return
		}
		if !serviceNamePattern.MatchString(s.Name) {
			errs = append(errs, fmt.Sprintf("%s has an invalid name (must match %s)", label, serviceNamePattern.String()))
		}
		if seenNames[s.Name] {
			errs = append(errs, fmt.Sprintf("duplicate service name %q", s.Name))
		}
		seenNames[s.Name] = true

		if s.Port < 1 || s.Port > 65535 {
			errs = append(errs, fmt.Sprintf("%s port must be between 1 and 65535, got %d", label, s.Port))
		} else if other, dup := seenPorts[s.Port]; dup {
			errs = append(errs, fmt.Sprintf("%s port %d already used by %q", label, s.Port, other))
		} else {
			seenPorts[s.Port] = s.Name
		}

		if s.HealthPath != "" && !strings.HasPrefix(s.HealthPath, "/") {
			errs = append(errs, fmt.Sprintf("%s health_path must start with /, got %q", label, s.HealthPath))
		}
		if s.MCPPath != "" && !strings.HasPrefix(s.MCPPath, "/") {
			errs = append(errs, fmt.Sprintf("%s mcp_path must start with /, got %q", label, s.MCPPath))
		}
	}

	for _, s := range f.Core {
		check("core", s)
		if s.Profile != "" {
			errs = append(errs, fmt.Sprintf("core service %q must not declare a profile (profiles mark the add-on tier), got %q", s.Name, s.Profile))
		}
	}

	if f.AddOn != nil {
		check("add-on", *f.AddOn)
		if f.AddOn.Profile == "" {
			errs = append(errs, fmt.Sprintf("add-on service %q must declare the compose profile that activates it", f.AddOn.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidFleet, strings.Join(errs, "\n  - "))
	}

	return nil
}
