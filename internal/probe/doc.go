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

/*
Package probe observes the live state of fleet services.

Probes are total: every question about a service answers true or false,
never an error. An unreachable endpoint, a refused dial, or a missing
docker binary all read as "not there". This keeps the reconciler free of
error plumbing for conditions that are ordinary answers, not failures.

# Health Probes

Health probes issue a GET against the service's health endpoint and
treat any 2xx response as healthy:

	prober := probe.NewDockerProber()
	if prober.Healthy(ctx, spec) {
	    // Service is answering
	}

CheckHealth returns the full result when status codes or latency matter:

	result := prober.CheckHealth(ctx, spec)
	fmt.Printf("%d in %v\n", result.StatusCode, result.ResponseTime)

# Port Probes

Port probes dial the loopback interface with a short timeout:

	if prober.PortInUse(ctx, 3001) {
	    // Something is listening
	}

A port can be in use while the health endpoint stays silent. That
combination is how the reconciler detects a foreign process squatting
on a fleet port.

# Container Probes

Container probes ask the docker CLI which containers are up:

	if prober.ContainerRunning(ctx, "tavily-mcp") {
	    // Container exists and is running
	}

# Waiting for Health

Health polling uses exponential backoff to wait for service startup:

	if err := prober.WaitHealthy(ctx, spec, 60*time.Second); err != nil {
	    // Service failed to come up in time
	}
*/
package probe
