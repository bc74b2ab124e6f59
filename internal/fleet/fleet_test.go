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
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	f := Default()

	if len(f.Core) != 3 {
		t.Fatalf("expected 3 core services, got %d", len(f.Core))
	}

	wantCore := map[string]int{
		"tavily-mcp": 3001,
		"arxiv-mcp":  3002,
		"serper-mcp": 3003,
	}
	for _, s := range f.Core {
		port, ok := wantCore[s.Name]
		if !ok {
			t.Errorf("unexpected core service %q", s.Name)
			continue
		}
		if s.Port != port {
			t.Errorf("service %s: expected port %d, got %d", s.Name, port, s.Port)
		}
		if s.Profile != "" {
			t.Errorf("service %s: core services must have no profile, got %q", s.Name, s.Profile)
		}
	}

	if f.AddOn == nil {
		t.Fatal("expected an add-on service")
	}
	if f.AddOn.Name != "serena" {
		t.Errorf("expected add-on 'serena', got %q", f.AddOn.Name)
	}
	if f.AddOn.Port != 9121 {
		t.Errorf("expected add-on port 9121, got %d", f.AddOn.Port)
	}
	if f.AddOn.Profile != "serena" {
		t.Errorf("expected add-on profile 'serena', got %q", f.AddOn.Profile)
	}

	if err := f.Validate(); err != nil {
		t.Errorf("default fleet should validate, got: %v", err)
	}
}

func TestServiceSpecURLs(t *testing.T) {
	t.Run("explicit paths", func(t *testing.T) {
		s := ServiceSpec{Name: "tavily-mcp", Port: 3001, HealthPath: "/health", MCPPath: "/mcp"}

		if got, want := s.HealthURL(), "http://localhost:3001/health"; got != want {
			t.Errorf("HealthURL() = %q, want %q", got, want)
		}
		if got, want := s.MCPURL(), "http://localhost:3001/mcp"; got != want {
			t.Errorf("MCPURL() = %q, want %q", got, want)
		}
		if got, want := s.Addr(), "127.0.0.1:3001"; got != want {
			t.Errorf("Addr() = %q, want %q", got, want)
		}
	})

	t.Run("path defaults applied", func(t *testing.T) {
		s := ServiceSpec{Name: "arxiv-mcp", Port: 3002}

		if got, want := s.HealthURL(), "http://localhost:3002/health"; got != want {
			t.Errorf("HealthURL() = %q, want %q", got, want)
		}
		if got, want := s.MCPURL(), "http://localhost:3002/mcp"; got != want {
			t.Errorf("MCPURL() = %q, want %q", got, want)
		}
	})
}

func TestServices(t *testing.T) {
	f := Default()

	t.Run("core only", func(t *testing.T) {
		specs := f.Services(false)
		if len(specs) != 3 {
			t.Fatalf("expected 3 specs, got %d", len(specs))
		}
		for _, s := range specs {
			if s.Name == "serena" {
				t.Error("add-on should not appear when not requested")
			}
		}
	})

	t.Run("with add-on", func(t *testing.T) {
		specs := f.Services(true)
		if len(specs) != 4 {
			t.Fatalf("expected 4 specs, got %d", len(specs))
		}
		if specs[len(specs)-1].Name != "serena" {
			t.Errorf("expected add-on last, got %q", specs[len(specs)-1].Name)
		}
	})

	t.Run("no add-on defined", func(t *testing.T) {
		g := &Fleet{Core: f.Core}
		if len(g.Services(true)) != 3 {
			t.Error("requesting a missing add-on should yield core only")
		}
		if g.HasAddOn() {
			t.Error("HasAddOn() = true, want false")
		}
		if g.AddOnProfile() != "" {
			t.Errorf("AddOnProfile() = %q, want empty", g.AddOnProfile())
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Fleet)
		wantErr bool
		errText string
	}{
		{
			name:    "valid default fleet",
			modify:  func(f *Fleet) {},
			wantErr: false,
		},
		{
			name: "empty core tier",
			modify: func(f *Fleet) {
				f.Core = nil
			},
			wantErr: true,
			errText: "core tier must contain at least one service",
		},
		{
			name: "missing service name",
			modify: func(f *Fleet) {
				f.Core[0].Name = ""
			},
			wantErr: true,
			errText: "no name",
		},
		{
			name: "invalid service name",
			modify: func(f *Fleet) {
				f.Core[0].Name = "tavily mcp"
			},
			wantErr: true,
			errText: "invalid name",
		},
		{
			name: "duplicate names",
			modify: func(f *Fleet) {
				f.Core[1].Name = f.Core[0].Name
			},
			wantErr: true,
			errText: "duplicate service name",
		},
		{
			name: "port too low",
			modify: func(f *Fleet) {
				f.Core[0].Port = 0
			},
			wantErr: true,
			errText: "port must be between 1 and 65535",
		},
		{
			name: "port too high",
			modify: func(f *Fleet) {
				f.Core[0].Port = 65536
			},
			wantErr: true,
			errText: "port must be between 1 and 65535",
		},
		{
			name: "duplicate ports across tiers",
			modify: func(f *Fleet) {
				f.AddOn.Port = f.Core[2].Port
			},
			wantErr: true,
			errText: "already used",
		},
		{
			name: "health path without slash",
			modify: func(f *Fleet) {
				f.Core[0].HealthPath = "health"
			},
			wantErr: true,
			errText: "health_path must start with /",
		},
		{
			name: "mcp path without slash",
			modify: func(f *Fleet) {
				f.Core[0].MCPPath = "mcp"
			},
			wantErr: true,
			errText: "mcp_path must start with /",
		},
		{
			name: "core service with profile",
			modify: func(f *Fleet) {
				f.Core[0].Profile = "extra"
			},
			wantErr: true,
			errText: "must not declare a profile",
		},
		{
			name: "add-on without profile",
			modify: func(f *Fleet) {
				f.AddOn.Profile = ""
			},
			wantErr: true,
			errText: "must declare the compose profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default()
			tt.modify(f)

			err := f.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalidFleet) {
					t.Errorf("error should wrap ErrInvalidFleet, got: %v", err)
				}
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errText)
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
