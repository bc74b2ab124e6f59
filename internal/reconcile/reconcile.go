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

// Package reconcile decides what a fleet launch should do.
//
// The reconciler reduces one probe snapshot of the fleet to a single
// Action per pass: skip, start the add-on, start everything, or abort on
// a port conflict. It performs no side effects itself; acting on the
// decision belongs to the caller.
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/bk918/mcpfleet/internal/fleet"
	"github.com/bk918/mcpfleet/internal/log"
	"github.com/bk918/mcpfleet/internal/probe"
)

// Reconciler computes the launch action for a fleet from probe snapshots.
type Reconciler struct {
	fleet        *fleet.Fleet
	prober       probe.Prober
	includeAddOn bool
	logger       *slog.Logger
}

// New creates a reconciler over the given fleet and prober. A nil fleet
// falls back to the default fleet.
func New(f *fleet.Fleet, p probe.Prober) *Reconciler {
	if f == nil {
		f = fleet.Default()
	}
	return &Reconciler{
		fleet:  f,
		prober: p,
		logger: slog.Default(),
	}
}

// WithAddOn requests the add-on tier for this pass.
func (r *Reconciler) WithAddOn(include bool) *Reconciler {
	r.includeAddOn = include
	return r
}

// WithLogger sets the logger used for decision tracing.
func (r *Reconciler) WithLogger(logger *slog.Logger) *Reconciler {
	if logger != nil {
		r.logger = log.WithComponent(logger, "reconcile")
	}
	return r
}

// Decide takes a fresh probe snapshot and returns the action for this
// pass. It is total: every snapshot maps to a decision, never an error.
//
// Branches are evaluated in fixed order, first match wins:
//  1. every core service ready, add-on not requested → Skip
//  2. every core service ready, add-on requested → Skip when the add-on
//     shows any sign of life, StartAddOn otherwise
//  3. core not ready, a core port held by a foreign process → AbortConflict
//  4. core not ready, ports free → StartAll (the add-on rides along on the
//     same flag, no separate pass)
func (r *Reconciler) Decide(ctx context.Context) *Decision {
	decision := r.decide(ctx)

	if len(decision.ConflictPorts) > 0 {
		r.logger.Debug("reconcile decision",
			log.ActionKey, decision.Action.String(),
			"conflict_ports", decision.ConflictPorts)
	} else {
		r.logger.Debug("reconcile decision", log.ActionKey, decision.Action.String())
	}

	return decision
}

func (r *Reconciler) decide(ctx context.Context) *Decision {
	core := r.probeCore(ctx)

	if allReady(core) {
		if !r.includeAddOn || r.fleet.AddOn == nil {
			return &Decision{Action: ActionSkip, Core: core}
		}

		addOn := r.probeService(ctx, *r.fleet.AddOn)
		if addOn.Present() {
			return &Decision{Action: ActionSkip, Core: core, AddOn: &addOn}
		}
		return &Decision{Action: ActionStartAddOn, Core: core, AddOn: &addOn}
	}

	// Port conflicts only matter for services that are down: a busy port
	// whose endpoint answers is just the service itself.
	r.probePorts(ctx, core)

	if conflicts := conflictPorts(core); len(conflicts) > 0 {
		return &Decision{Action: ActionAbortConflict, Core: core, ConflictPorts: conflicts}
	}

	return &Decision{Action: ActionStartAll, Core: core}
}

// probeCore snapshots container and health state for every core service
// concurrently. The decision consumes only the aggregate, so arrival
// order does not matter.
func (r *Reconciler) probeCore(ctx context.Context) []ServiceState {
	states := make([]ServiceState, len(r.fleet.Core))

	var wg sync.WaitGroup
	for i, spec := range r.fleet.Core {
		wg.Add(1)
		go func(i int, spec fleet.ServiceSpec) {
			defer wg.Done()
			states[i] = r.probeService(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	for _, st := range states {
		log.Trace(r.logger, "probed service",
			log.String(log.ServiceKey, st.Spec.Name),
			log.Int(log.PortKey, st.Spec.Port),
			log.Bool("container_running", st.ContainerRunning),
			log.Bool("healthy", st.Healthy))
	}

	return states
}

// probeService asks both liveness questions for one service concurrently.
func (r *Reconciler) probeService(ctx context.Context, spec fleet.ServiceSpec) ServiceState {
	state := ServiceState{Spec: spec}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		state.ContainerRunning = r.prober.ContainerRunning(ctx, spec.Name)
	}()
	go func() {
		defer wg.Done()
		state.Healthy = r.prober.Healthy(ctx, spec)
	}()
	wg.Wait()

	return state
}

// probePorts fills PortBusy for every state in place, concurrently.
func (r *Reconciler) probePorts(ctx context.Context, states []ServiceState) {
	var wg sync.WaitGroup
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i].PortBusy = r.prober.PortInUse(ctx, states[i].Spec.Port)
		}(i)
	}
	wg.Wait()
}

func allReady(states []ServiceState) bool {
	for _, st := range states {
		if !st.Ready() {
			return false
		}
	}
	return true
}

// conflictPorts collects ports held by foreign processes, sorted ascending
// for stable operator messaging.
func conflictPorts(states []ServiceState) []int {
	var ports []int
	for _, st := range states {
		if st.Conflicted() {
			ports = append(ports, st.Spec.Port)
		}
	}
	sort.Ints(ports)
	return ports
}
