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

package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bk918/mcpfleet/internal/fleet"
	pkgerrors "github.com/bk918/mcpfleet/pkg/errors"
)

const (
	// DefaultHealthTimeout bounds a single health endpoint request.
	DefaultHealthTimeout = 3 * time.Second

	// DefaultDialTimeout bounds a single TCP port probe.
	DefaultDialTimeout = 1 * time.Second
)

// Prober reports observed service state.
//
// Implementations must be total: probes answer true or false, never an
// error. Anything that prevents observation reads as false.
type Prober interface {
	// Healthy reports whether the service's health endpoint answers 2xx.
	Healthy(ctx context.Context, spec fleet.ServiceSpec) bool

	// PortInUse reports whether something is listening on the port on the
	// loopback interface.
	PortInUse(ctx context.Context, port int) bool

	// ContainerRunning reports whether a container with the given name is up.
	ContainerRunning(ctx context.Context, name string) bool
}

// HealthResult contains the result of a single health probe.
type HealthResult struct {
	Success      bool
	StatusCode   int
	ResponseTime time.Duration
	Error        error
}

// DockerProber probes services over localhost HTTP/TCP and asks the
// docker CLI about container state.
type DockerProber struct {
	client          *http.Client
	dialTimeout     time.Duration
	dockerBin       string
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
}

// NewDockerProber creates a prober with default timeouts.
// Default backoff for WaitHealthy: 50ms initial, 2x multiplier, 1s max interval.
func NewDockerProber() *DockerProber {
	return &DockerProber{
		client: &http.Client{
			Timeout: DefaultHealthTimeout,
		},
		dialTimeout:     DefaultDialTimeout,
		dockerBin:       "docker",
		initialInterval: 50 * time.Millisecond,
		maxInterval:     1 * time.Second,
		multiplier:      2.0,
	}
}

// WithHTTPClient sets a custom HTTP client for health probes.
func (p *DockerProber) WithHTTPClient(client *http.Client) *DockerProber {
	p.client = client
	return p
}

// WithDialTimeout sets the TCP dial timeout for port probes.
func (p *DockerProber) WithDialTimeout(timeout time.Duration) *DockerProber {
	p.dialTimeout = timeout
	return p
}

// WithDockerBinary overrides the docker binary used for container probes.
func (p *DockerProber) WithDockerBinary(bin string) *DockerProber {
	p.dockerBin = bin
	return p
}

// WithBackoff configures custom backoff parameters for WaitHealthy.
func (p *DockerProber) WithBackoff(initial, max time.Duration, multiplier float64) *DockerProber {
	p.initialInterval = initial
	p.maxInterval = max
	p.multiplier = multiplier
	return p
}

// CheckHealth performs a single probe of the service's health endpoint.
func (p *DockerProber) CheckHealth(ctx context.Context, spec fleet.ServiceSpec) *HealthResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.HealthURL(), nil)
	if err != nil {
		return &HealthResult{
			Success: false,
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	resp, err := p.client.Do(req)
	responseTime := time.Since(start)

	if err != nil {
		return &HealthResult{
			Success:      false,
			ResponseTime: responseTime,
			Error:        fmt.Errorf("request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	return &HealthResult{
		Success:      success,
		StatusCode:   resp.StatusCode,
		ResponseTime: responseTime,
		Error:        nil,
	}
}

// Healthy reports whether the service's health endpoint answers 2xx.
func (p *DockerProber) Healthy(ctx context.Context, spec fleet.ServiceSpec) bool {
	return p.CheckHealth(ctx, spec).Success
}

// PortInUse dials the port on the loopback interface. A completed dial
// means something is listening; refusal or timeout means the port is free.
func (p *DockerProber) PortInUse(ctx context.Context, port int) bool {
	dialer := &net.Dialer{Timeout: p.dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ContainerRunning asks the docker CLI whether a container with the given
// name is up. The compose file sets container_name to the service name, so
// an exact match against running container names suffices. The name filter
// narrows the listing but matches substrings, hence the line comparison.
func (p *DockerProber) ContainerRunning(ctx context.Context, name string) bool {
	cmd := exec.CommandContext(ctx, p.dockerBin, "ps", "--filter", "name="+name, "--format", "{{.Names}}")

	output, err := cmd.Output()
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == name {
			return true
		}
	}
	return false
}

// WaitHealthy polls the service's health endpoint until it answers or the
// timeout is reached. Uses exponential backoff between attempts.
func (p *DockerProber) WaitHealthy(ctx context.Context, spec fleet.ServiceSpec, timeout time.Duration) error {
	return p.WaitHealthyWithCallback(ctx, spec, timeout, nil)
}

// WaitHealthyWithCallback is like WaitHealthy but calls a callback for each
// attempt. This is useful for logging progress during startup.
func (p *DockerProber) WaitHealthyWithCallback(ctx context.Context, spec fleet.ServiceSpec, timeout time.Duration, callback func(*HealthResult, int)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := p.initialInterval
	attempts := 0

	for {
		attempts++
		result := p.CheckHealth(ctx, spec)

		if callback != nil {
			callback(result, attempts)
		}

		if result.Success {
			return nil
		}

		// Check if we've exceeded timeout
		select {
		case <-ctx.Done():
			return &pkgerrors.TimeoutError{
				Operation: fmt.Sprintf("%s health check", spec.Name),
				Duration:  timeout,
				Cause:     result.Error,
			}
		default:
		}

		// Wait before next attempt with exponential backoff
		time.Sleep(interval)

		// Increase interval for next attempt
		interval = time.Duration(float64(interval) * p.multiplier)
		if interval > p.maxInterval {
			interval = p.maxInterval
		}
	}
}

// Verify DockerProber satisfies the Prober interface
var _ Prober = (*DockerProber)(nil)
