// Package hotswap implements the component slot lifecycle state machine
// (spec §4.5): LOADING -> READY -> DRAINING -> RETIRED, with sandboxed
// candidate validation and directory-watch-triggered discovery.
package hotswap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"annopipe/internal/logging"
	"annopipe/internal/pipeline"
	"annopipe/internal/pipelineerrors"
)

// HealthCheck validates a candidate instance before promoting it from
// LOADING to READY. Returning false (or an error) retires the slot
// without ever reaching READY.
type HealthCheck func(instance any) (bool, error)

// Manager owns every ComponentSlot, keyed by (kind, id), and coordinates
// the state machine: Register/Acquire/Release/PrepareSwap/ExecuteSwap.
type Manager struct {
	mu    sync.Mutex
	slots map[string]*pipeline.ComponentSlot
	ready map[pipeline.ComponentKind]string // currently-READY slot key per kind, at most one
}

func slotKey(kind pipeline.ComponentKind, id string) string {
	return string(kind) + "/" + id
}

// NewManager creates an empty hot-swap manager.
func NewManager() *Manager {
	return &Manager{
		slots: make(map[string]*pipeline.ComponentSlot),
		ready: make(map[pipeline.ComponentKind]string),
	}
}

// Register creates a new slot in LOADING state and runs its health check.
// On success the slot transitions to READY and is promoted (any previously
// READY slot of the same kind begins DRAINING). On
// failure the slot transitions straight to RETIRED and an error is
// returned; it is never visible to Acquire.
func (m *Manager) Register(ctx context.Context, desc pipeline.ComponentDescriptor, instance any, check HealthCheck) error {
	if desc.ID == "" {
		return pipelineerrors.ErrComponentNameEmpty
	}

	key := slotKey(desc.Kind, desc.ID)
	slot := &pipeline.ComponentSlot{
		Descriptor: desc,
		Instance:   instance,
		State:      pipeline.SlotLoading,
	}

	m.mu.Lock()
	if _, exists := m.slots[key]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", pipelineerrors.ErrComponentAlreadyRegistered, key)
	}
	m.slots[key] = slot
	m.mu.Unlock()

	ok, err := check(instance)
	if err != nil || !ok {
		m.mu.Lock()
		slot.State = pipeline.SlotRetired
		m.mu.Unlock()
		logging.HotSwapWarn("slot %s failed health check: %v", key, err)
		return fmt.Errorf("%w: %s", pipelineerrors.ErrUnhealthyComponent, key)
	}

	m.mu.Lock()
	slot.State = pipeline.SlotReady
	if prevKey, hasPrev := m.ready[desc.Kind]; hasPrev && prevKey != key {
		if prev, ok := m.slots[prevKey]; ok {
			prev.State = pipeline.SlotDraining
		}
	}
	m.ready[desc.Kind] = key
	m.mu.Unlock()

	logging.HotSwap("slot %s promoted to READY", key)
	return nil
}

// Acquire returns the current READY slot for a kind, incrementing its
// active-request count. Callers must call Release when done. A hot-swap
// that happens mid-request leaves in-flight leases valid against the
// previous instance: Acquire only ever hands out the slot that was READY
// at call time, DRAINING slots stay valid for leases already acquired.
func (m *Manager) Acquire(kind pipeline.ComponentKind) (*pipeline.ComponentSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.ready[kind]
	if !ok {
		return nil, fmt.Errorf("%w: kind=%s", pipelineerrors.ErrNoHealthyCandidate, kind)
	}
	slot := m.slots[key]
	slot.ActiveRequests++
	return slot, nil
}

// Release decrements a slot's active-request count. If the slot is
// DRAINING and has no more active requests, it transitions to RETIRED.
func (m *Manager) Release(slot *pipeline.ComponentSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot.ActiveRequests > 0 {
		slot.ActiveRequests--
	}
	if slot.State == pipeline.SlotDraining && slot.ActiveRequests == 0 {
		slot.State = pipeline.SlotRetired
		logging.HotSwap("slot %s/%s retired", slot.Descriptor.Kind, slot.Descriptor.ID)
	}
}

// PrepareSwap moves the currently-READY slot for a kind into DRAINING,
// so a subsequent Register of a new candidate can take over as READY.
func (m *Manager) PrepareSwap(kind pipeline.ComponentKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.ready[kind]
	if !ok {
		return
	}
	if slot, ok := m.slots[key]; ok && slot.State == pipeline.SlotReady {
		slot.State = pipeline.SlotDraining
	}
	delete(m.ready, kind)
}

// ExecuteSwap registers newInstance as the replacement for kind, then
// waits up to gracePeriod for the previously-DRAINING slot to reach zero
// active requests before returning. It does not force-retire a slot that
// is still in use past the grace period; callers may poll Slot(kind, id)
// afterward if they need to confirm full retirement.
//
// It deliberately does not call PrepareSwap first: Register already only
// drains the previous READY slot after newInstance's health check
// succeeds (see above), so a failing candidate here leaves the
// previously-serving slot untouched and still READY, rather than
// draining it pre-emptively and leaving the kind with zero READY slots.
func (m *Manager) ExecuteSwap(ctx context.Context, desc pipeline.ComponentDescriptor, newInstance any, check HealthCheck, gracePeriod time.Duration) error {
	if err := m.Register(ctx, desc, newInstance, check); err != nil {
		return err
	}

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if m.allDrainedComplete(desc.Kind, desc.ID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

func (m *Manager) allDrainedComplete(kind pipeline.ComponentKind, newID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, slot := range m.slots {
		if slot.Descriptor.Kind != kind || slot.Descriptor.ID == newID {
			continue
		}
		if slot.State == pipeline.SlotDraining && slot.ActiveRequests > 0 {
			_ = key
			return false
		}
	}
	return true
}

// Slot returns the current slot for (kind, id), or nil if unknown.
func (m *Manager) Slot(kind pipeline.ComponentKind, id string) *pipeline.ComponentSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[slotKey(kind, id)]
}

// All returns every registered slot, sorted by (kind, id), for listing
// commands that need the full inventory rather than a single lookup.
func (m *Manager) All() []*pipeline.ComponentSlot {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.slots))
	for k := range m.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*pipeline.ComponentSlot, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.slots[k])
	}
	return out
}
