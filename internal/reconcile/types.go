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

package reconcile

import (
	"github.com/bk918/mcpfleet/internal/fleet"
)

// Action is the single reconciliation outcome for one pass.
type Action int

const (
	// ActionSkip means the desired state already holds; nothing to do.
	ActionSkip Action = iota
	// ActionStartAddOn means core is healthy and only the add-on needs starting.
	ActionStartAddOn
	// ActionStartAll means start the full service set.
	ActionStartAll
	// ActionAbortConflict means foreign processes hold fleet ports; start nothing.
	ActionAbortConflict
)

// String returns the action's log-friendly name.
func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionStartAddOn:
		return "start-addon"
	case ActionStartAll:
		return "start-all"
	case ActionAbortConflict:
		return "abort-conflict"
	default:
		return "unknown"
	}
}

// ServiceState is one service's probe snapshot. Snapshots are taken fresh
// on every pass and never cached across invocations.
type ServiceState struct {
	// Spec identifies the service.
	Spec fleet.ServiceSpec
	// ContainerRunning reports whether the service's container is up.
	ContainerRunning bool
	// Healthy reports whether the health endpoint answered.
	Healthy bool
	// PortBusy reports whether something is listening on the service's
	// port. Only probed on passes that consider starting services.
	PortBusy bool
}

// Ready reports whether the service counts as up. Endpoint liveness is the
// ground truth: a running container with a failing health check is down,
// and an answering endpoint with no visible container is up.
func (s ServiceState) Ready() bool {
	return s.Healthy
}

// Present reports whether the service shows any sign of life, a running
// container or an answering endpoint. Used for the add-on tier, where
// "already there" is enough reason not to touch it.
func (s ServiceState) Present() bool {
	return s.ContainerRunning || s.Healthy
}

// Conflicted reports whether the service's port is held by something that
// does not answer as the service.
func (s ServiceState) Conflicted() bool {
	return s.PortBusy && !s.Healthy
}

// Decision is the reconciler's verdict for one pass.
type Decision struct {
	// Action is the one action to take.
	Action Action
	// Core holds the probe snapshot for every core service.
	Core []ServiceState
	// AddOn holds the add-on snapshot when it was probed, nil otherwise.
	AddOn *ServiceState
	// ConflictPorts lists core ports held by foreign processes, ascending.
	ConflictPorts []int
}
