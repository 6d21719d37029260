package durable

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// MemoryJournal keeps journal state in process memory. State does not
// survive a restart; it suits tests and single-process development.
type MemoryJournal struct {
	mu        sync.Mutex
	instances map[string]Instance
	steps     map[string]map[string]json.RawMessage
	deadlines map[string]map[string]time.Time
	events    map[string][]Event
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		instances: make(map[string]Instance),
		steps:     make(map[string]map[string]json.RawMessage),
		deadlines: make(map[string]map[string]time.Time),
		events:    make(map[string][]Event),
	}
}

func (m *MemoryJournal) CreateInstance(ctx context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[inst.ID]; ok {
		return ErrExists
	}
	m.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (m *MemoryJournal) UpdateInstance(ctx context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.instances[inst.ID]
	if !ok {
		return ErrNotFound
	}

	stored.Status = inst.Status
	stored.Stage = inst.Stage
	stored.Output = slices.Clone(inst.Output)
	stored.Error = inst.Error
	stored.UpdatedAt = inst.UpdatedAt
	m.instances[inst.ID] = stored
	return nil
}

func (m *MemoryJournal) FindInstance(ctx context.Context, id string) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := cloneInstance(&inst)
	return &clone, nil
}

func (m *MemoryJournal) PendingInstances(ctx context.Context, workflow string) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]Instance, 0)
	for _, inst := range m.instances {
		if inst.Workflow == workflow && !inst.Status.Terminal() {
			pending = append(pending, cloneInstance(&inst))
		}
	}

	slices.SortFunc(pending, func(a, b Instance) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return pending, nil
}

func (m *MemoryJournal) LoadStep(ctx context.Context, id, name string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.steps[id][name]
	return slices.Clone(raw), ok, nil
}

func (m *MemoryJournal) SaveStep(ctx context.Context, id, name string, output json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.steps[id] == nil {
		m.steps[id] = make(map[string]json.RawMessage)
	}
	if _, ok := m.steps[id][name]; !ok {
		m.steps[id][name] = slices.Clone(output)
	}
	return nil
}

func (m *MemoryJournal) WaitDeadline(ctx context.Context, id, name string, deadline time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deadlines[id] == nil {
		m.deadlines[id] = make(map[string]time.Time)
	}
	if existing, ok := m.deadlines[id][name]; ok {
		return existing, nil
	}
	m.deadlines[id][name] = deadline
	return deadline, nil
}

func (m *MemoryJournal) AppendEvent(ctx context.Context, id string, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[id]; !ok {
		return ErrNotFound
	}
	ev.Payload = slices.Clone(ev.Payload)
	m.events[id] = append(m.events[id], ev)
	return nil
}

func (m *MemoryJournal) ConsumeEvent(ctx context.Context, id, kind, step string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.events[id]
	idx := slices.IndexFunc(queue, func(ev Event) bool { return ev.Kind == kind })
	if idx < 0 {
		return nil, nil
	}

	ev := queue[idx]
	outcome, err := eventOutcome(ev)
	if err != nil {
		return nil, err
	}

	m.events[id] = slices.Delete(queue, idx, idx+1)
	if m.steps[id] == nil {
		m.steps[id] = make(map[string]json.RawMessage)
	}
	if _, ok := m.steps[id][step]; !ok {
		m.steps[id][step] = outcome
	}
	return &ev, nil
}

func cloneInstance(inst *Instance) Instance {
	clone := *inst
	clone.Params = slices.Clone(inst.Params)
	clone.Output = slices.Clone(inst.Output)
	return clone
}
