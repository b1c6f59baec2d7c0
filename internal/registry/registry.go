// Package registry holds the Orchestrator Core's view of every node: its
// static NodeDefinition, its live NodeRuntimeState, and the Transport used
// to reach it. Grounded on the donor's internal/project/registry.go
// RWMutex-guarded map shape (Add/Remove/Get/List), extended with the
// health-tracking loop spec.md §4.3.1 requires and the donor's
// project-index concept drops entirely.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/audit"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/transport"
)

// entry bundles one node's static definition, transport, and the mutable
// health state the probe loop maintains.
type entry struct {
	def       model.NodeDefinition
	transport transport.Transport
	mu        sync.Mutex
	state     model.NodeRuntimeState
}

// Registry is the orchestrator's node directory.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	probeInterval time.Duration
	auditLog      *audit.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an empty Registry. probeInterval is the per-node health
// loop's polling period (spec.md §4.3.1 default: 5s).
func New(probeInterval time.Duration, auditLog *audit.Logger) *Registry {
	if probeInterval <= 0 {
		probeInterval = 5 * time.Second
	}
	return &Registry{
		entries:       make(map[string]*entry),
		probeInterval: probeInterval,
		auditLog:      auditLog,
		stopCh:        make(chan struct{}),
	}
}

// Add registers a node and starts its health loop. The node begins
// unhealthy until its first successful probe, so a dispatch racing
// immediately after Add will not select it.
func (reg *Registry) Add(def model.NodeDefinition, t transport.Transport) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.entries[def.NodeID]; exists {
		return fmt.Errorf("node %s already registered", def.NodeID)
	}
	e := &entry{
		def:       def,
		transport: t,
		state:     model.NodeRuntimeState{NodeID: def.NodeID, Healthy: false},
	}
	reg.entries[def.NodeID] = e
	if reg.auditLog != nil {
		reg.auditLog.Record(audit.Record{
			Actor:   "registry",
			Action:  model.ActionNodeRegister,
			Target:  def.NodeID,
			Success: true,
		})
	}

	reg.wg.Add(1)
	go reg.healthLoop(e)
	return nil
}

// Remove unregisters a node; its health loop observes stopCh is shared
// globally, so Remove simply deletes the map entry — the loop exits on
// the next tick once it notices the entry is gone.
func (reg *Registry) Remove(nodeID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.entries, nodeID)
}

// Get returns the node's definition, transport, and a snapshot of its
// current runtime state.
func (reg *Registry) Get(nodeID string) (model.NodeDefinition, transport.Transport, model.NodeRuntimeState, bool) {
	reg.mu.RLock()
	e, ok := reg.entries[nodeID]
	reg.mu.RUnlock()
	if !ok {
		return model.NodeDefinition{}, nil, model.NodeRuntimeState{}, false
	}
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	return e.def, e.transport, state, true
}

// Snapshot is one node's combined view, used both by HTTP listing
// handlers and by the planner's router stage — the SAME snapshot feeds
// both, so dispatch eligibility always matches what the router saw, per
// spec.md §4.3.1.
type Snapshot struct {
	Definition model.NodeDefinition
	State      model.NodeRuntimeState
	Transport  transport.Transport
}

// List returns a snapshot of every registered node, definitions and
// runtime state together, in no particular order.
func (reg *Registry) List() []Snapshot {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]Snapshot, 0, len(reg.entries))
	for _, e := range reg.entries {
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		out = append(out, Snapshot{Definition: e.def, State: state, Transport: e.transport})
	}
	return out
}

// Healthy returns only the nodes eligible for dispatch at this instant.
func (reg *Registry) Healthy() []Snapshot {
	all := reg.List()
	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		if s.State.Healthy {
			out = append(out, s)
		}
	}
	return out
}

// Stop halts every node's health loop and waits for them to exit.
func (reg *Registry) Stop() {
	close(reg.stopCh)
	reg.wg.Wait()
}

func (reg *Registry) healthLoop(e *entry) {
	defer reg.wg.Done()
	ticker := time.NewTicker(reg.probeInterval)
	defer ticker.Stop()

	reg.probe(e)
	for {
		select {
		case <-reg.stopCh:
			return
		case <-ticker.C:
			reg.mu.RLock()
			_, stillRegistered := reg.entries[e.def.NodeID]
			reg.mu.RUnlock()
			if !stillRegistered {
				return
			}
			reg.probe(e)
		}
	}
}

func (reg *Registry) probe(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), reg.probeInterval)
	defer cancel()

	err := e.transport.Healthz(ctx)
	info, infoErr := e.transport.GetNodeInfo(ctx)

	e.mu.Lock()
	wasHealthy := e.state.Healthy
	nowHealthy := err == nil
	e.state.Healthy = nowHealthy
	e.state.LastProbeAt = time.Now()
	if err != nil {
		e.state.LastError = err.Error()
	} else {
		e.state.LastError = ""
		if infoErr == nil {
			e.state.Info = info
		}
	}
	e.mu.Unlock()

	if wasHealthy != nowHealthy && reg.auditLog != nil {
		msg := "node became unhealthy"
		if nowHealthy {
			msg = "node became healthy"
		}
		reg.auditLog.Record(audit.Record{
			Actor:   "registry",
			Action:  model.ActionHealthTransition,
			Target:  e.def.NodeID,
			Success: nowHealthy,
			Message: msg,
		})
	}
}
