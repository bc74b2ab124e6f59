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
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/cli"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/bk918/mcpfleet/internal/fleet"
	pkgerrors "github.com/bk918/mcpfleet/pkg/errors"
)

// composeService is the slice of a compose service the fleet cares about.
type composeService struct {
	name          string
	containerName string
	port          int
	hasPort       bool
	profiles      []string
}

// FleetFromComposeFile derives the fleet from a compose file: profile-less
// services form the core tier, the single profiled service becomes the
// add-on. Interpolation uses the process environment plus the project's
// .env file, the same inputs compose itself would use.
func FleetFromComposeFile(ctx context.Context, path string) (*fleet.Fleet, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &pkgerrors.NotFoundError{Resource: "compose file", ID: path}
		}
		return nil, err
	}

	services, err := servicesFromProject(ctx, path)
	if err != nil {
		// compose-go is strict about schema details the fleet does not
		// depend on; retry with a plain YAML read.
		services, err = servicesFromRawYAML(path)
		if err != nil {
			return nil, &pkgerrors.ConfigError{
				Key:    "compose_file",
				Reason: fmt.Sprintf("failed to parse %s", path),
				Cause:  err,
			}
		}
	}

	fl, err := buildFleet(services)
	if err != nil {
		return nil, &pkgerrors.ConfigError{
			Key:    "compose_file",
			Reason: fmt.Sprintf("%s does not describe a valid fleet", path),
			Cause:  err,
		}
	}
	return fl, nil
}

// servicesFromProject parses the file with compose-go. Profiled services
// land in DisabledServices when their profile is inactive, so both maps
// are read.
func servicesFromProject(ctx context.Context, path string) ([]composeService, error) {
	opts, err := cli.NewProjectOptions(
		[]string{path},
		cli.WithOsEnv,
		cli.WithDotEnv,
	)
	if err != nil {
		return nil, fmt.Errorf("project options: %w", err)
	}

	project, err := cli.ProjectFromOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("compose parse: %w", err)
	}

	all := make(map[string]composetypes.ServiceConfig, len(project.Services)+len(project.DisabledServices))
	for name, svc := range project.Services {
		all[name] = svc
	}
	for name, svc := range project.DisabledServices {
		all[name] = svc
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make([]composeService, 0, len(names))
	for _, name := range names {
		svc := all[name]
		entry := composeService{
			name:          name,
			containerName: svc.ContainerName,
			profiles:      svc.Profiles,
		}
		for _, p := range svc.Ports {
			port, err := strconv.Atoi(p.Published)
			if err != nil {
				continue
			}
			entry.port = port
			entry.hasPort = true
			break
		}
		services = append(services, entry)
	}
	return services, nil
}

// rawCompose is the minimal schema for the fallback parse.
type rawCompose struct {
	Services map[string]rawService `yaml:"services"`
}

type rawService struct {
	ContainerName string   `yaml:"container_name"`
	Ports         []any    `yaml:"ports"`
	Profiles      []string `yaml:"profiles"`
}

// servicesFromRawYAML reads the file without compose semantics: no
// interpolation, no schema validation, just service names, ports, and
// profiles.
func servicesFromRawYAML(path string) ([]composeService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw rawCompose
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}
	if len(raw.Services) == 0 {
		return nil, fmt.Errorf("no services defined")
	}

	names := make([]string, 0, len(raw.Services))
	for name := range raw.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make([]composeService, 0, len(names))
	for _, name := range names {
		svc := raw.Services[name]
		entry := composeService{
			name:          name,
			containerName: svc.ContainerName,
			profiles:      svc.Profiles,
		}
		for _, p := range svc.Ports {
			if port, ok := publishedPort(p); ok {
				entry.port = port
				entry.hasPort = true
				break
			}
		}
		services = append(services, entry)
	}
	return services, nil
}

// publishedPort extracts the host port from one compose port entry.
// Handles "3001:3001", "127.0.0.1:3001:3001", the long map syntax, and
// bare container ports (which publish nothing).
func publishedPort(entry any) (int, bool) {
	switch v := entry.(type) {
	case string:
		parts := strings.Split(v, ":")
		switch len(parts) {
		case 1:
			return 0, false
		case 2:
			return atoiPort(parts[0])
		default:
			return atoiPort(parts[len(parts)-2])
		}
	case map[string]any:
		switch p := v["published"].(type) {
		case int:
			if p >= 1 && p <= 65535 {
				return p, true
			}
		case string:
			return atoiPort(p)
		}
	}
	return 0, false
}

func atoiPort(s string) (int, bool) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// buildFleet classifies parsed services into tiers and validates the
// result: every service publishes a port, container names match service
// names, and at most one service carries a profile.
func buildFleet(services []composeService) (*fleet.Fleet, error) {
	var errs []string
	fl := &fleet.Fleet{}

	for _, svc := range services {
		if svc.containerName != "" && svc.containerName != svc.name {
			errs = append(errs, fmt.Sprintf("service %q sets container_name %q; the container name must match the service name so probing can find it", svc.name, svc.containerName))
		}
		if !svc.hasPort {
			errs = append(errs, fmt.Sprintf("service %q publishes no host port", svc.name))
		}

		spec := fleet.ServiceSpec{
			Name:       svc.name,
			Port:       svc.port,
			HealthPath: fleet.DefaultHealthPath,
			MCPPath:    fleet.DefaultMCPPath,
		}

		switch len(svc.profiles) {
		case 0:
			fl.Core = append(fl.Core, spec)
		case 1:
			spec.Profile = svc.profiles[0]
			if fl.AddOn != nil {
				errs = append(errs, fmt.Sprintf("the fleet supports a single add-on service, found %q and %q", fl.AddOn.Name, svc.name))
			} else {
				addOn := spec
				fl.AddOn = &addOn
			}
		default:
			errs = append(errs, fmt.Sprintf("service %q declares profiles %v; the add-on tier uses exactly one profile", svc.name, svc.profiles))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	if err := fl.Validate(); err != nil {
		return nil, err
	}
	return fl, nil
}
