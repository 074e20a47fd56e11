// Package blackboard implements the structured shared state that agents
// coordinate through: session variables, FIFO queues, deduplicated facts,
// transient events and per-agent private memory.
//
// A Blackboard lives in memory for the lifetime of a session. The engine
// owns all writes: agents read from an immutable snapshot taken at the
// start of each phase and hand their updates back for the engine to merge.
// Hosts that need persistence convert the board to and from a plain tree
// of primitives with ToDict and FromDict.
package blackboard

type (
	// Event is a transient broadcast signal used for agent coordination.
	// Events are not deduplicated: several events with the same name may
	// coexist within a turn. They are cleared when the turn completes.
	Event struct {
		// Name identifies the signal, e.g. "question_detected".
		Name string
		// Payload carries arbitrary event data.
		Payload map[string]any
		// SourceAgent is the ID of the agent that emitted the event.
		SourceAgent string
		// Timestamp is seconds since session start.
		Timestamp float64
		// ID optionally identifies the event for tracing.
		ID string
	}

	// Fact is an extracted piece of knowledge. Facts are deduplicated by
	// (Type, Key); a fact with an empty Key is deduplicated by Type alone.
	Fact struct {
		// Type is the fact category, e.g. "budget" or "stakeholder".
		Type string
		// Key optionally discriminates instances within a type, e.g.
		// "stakeholder.cfo". Empty means the fact is keyed by type only.
		Key string
		// Value is the extracted value.
		Value any
		// Confidence is the extraction confidence in [0, 1].
		Confidence float64
		// SourceAgent is the ID of the agent that extracted the fact.
		SourceAgent string
		// Timestamp is seconds since session start.
		Timestamp float64
	}

	// Blackboard is the structured shared state of one session. It is not
	// safe for concurrent mutation: the engine serializes all writes and
	// agents only ever read from per-phase snapshots.
	Blackboard struct {
		variables map[string]any
		queues    map[string][]any
		facts     []Fact
		events    []Event
		memory    map[string]map[string]any
	}
)

// New returns an empty Blackboard.
func New() *Blackboard {
	return &Blackboard{
		variables: make(map[string]any),
		queues:    make(map[string][]any),
		memory:    make(map[string]map[string]any),
	}
}

// Emit appends an event. Multiple events with the same name may coexist;
// callers that need deduplication can use the event ID.
func (b *Blackboard) Emit(e Event) {
	b.events = append(b.events, e)
}

// ClearEvents drops all pending events. The engine calls this when a turn
// completes so that events never survive across turns.
func (b *Blackboard) ClearEvents() {
	b.events = nil
}

// HasEvent reports whether any pending event has the given name.
func (b *Blackboard) HasEvent(name string) bool {
	for _, e := range b.events {
		if e.Name == name {
			return true
		}
	}
	return false
}

// EventsByName returns all pending events with the given name.
func (b *Blackboard) EventsByName(name string) []Event {
	var out []Event
	for _, e := range b.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// CountEvents returns the number of pending events with the given name.
func (b *Blackboard) CountEvents(name string) int {
	n := 0
	for _, e := range b.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Events returns a copy of the pending event list.
func (b *Blackboard) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// SetVar sets a session variable. Keys starting with "sys." are reserved
// for engine-owned values; hosts and agents should not write them.
func (b *Blackboard) SetVar(key string, value any) {
	b.variables[key] = value
}

// Var returns a session variable and whether it is set.
func (b *Blackboard) Var(key string) (any, bool) {
	v, ok := b.variables[key]
	return v, ok
}

// DeleteVar removes a session variable.
func (b *Blackboard) DeleteVar(key string) {
	delete(b.variables, key)
}

// HasVar reports whether a session variable is set.
func (b *Blackboard) HasVar(key string) bool {
	_, ok := b.variables[key]
	return ok
}

// Variables returns a shallow copy of all session variables.
func (b *Blackboard) Variables() map[string]any {
	out := make(map[string]any, len(b.variables))
	for k, v := range b.variables {
		out[k] = v
	}
	return out
}

// PushQueue appends one item to a queue, creating the queue if needed.
func (b *Blackboard) PushQueue(name string, item any) {
	b.queues[name] = append(b.queues[name], item)
}

// PushQueueItems appends items to a queue in order, creating it if needed.
func (b *Blackboard) PushQueueItems(name string, items []any) {
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = []any{}
	}
	b.queues[name] = append(b.queues[name], items...)
}

// PopQueue removes and returns the oldest item in a queue. It reports
// false when the queue is missing or empty.
func (b *Blackboard) PopQueue(name string) (any, bool) {
	q := b.queues[name]
	if len(q) == 0 {
		return nil, false
	}
	item := q[0]
	b.queues[name] = q[1:]
	return item, true
}

// PeekQueue returns the oldest item in a queue without removing it.
func (b *Blackboard) PeekQueue(name string) (any, bool) {
	q := b.queues[name]
	if len(q) == 0 {
		return nil, false
	}
	return q[0], true
}

// QueueLength returns the number of items in a queue, zero if missing.
func (b *Blackboard) QueueLength(name string) int {
	return len(b.queues[name])
}

// ClearQueue empties a queue, creating it if it does not exist.
func (b *Blackboard) ClearQueue(name string) {
	b.queues[name] = []any{}
}

// HasQueue reports whether a queue exists, empty or not.
func (b *Blackboard) HasQueue(name string) bool {
	_, ok := b.queues[name]
	return ok
}

// Queue returns a copy of a queue's items, oldest first.
func (b *Blackboard) Queue(name string) []any {
	q := b.queues[name]
	out := make([]any, len(q))
	copy(out, q)
	return out
}

// AddFact records a fact under the deduplication rule: a fact with an
// empty Key matches any existing fact of the same Type, a fact with a set
// Key matches only the exact (Type, Key) pair. The new fact replaces its
// match when its confidence is greater than or equal to the existing one,
// so equal-confidence ties go to the newer arrival; a lower-confidence
// add is a no-op. Replacement moves the fact to the end of the list.
// AddFact reports whether the board changed.
func (b *Blackboard) AddFact(f Fact) bool {
	idx := -1
	for i, existing := range b.facts {
		if existing.Type != f.Type {
			continue
		}
		if f.Key == "" || existing.Key == f.Key {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.facts = append(b.facts, f)
		return true
	}
	if f.Confidence < b.facts[idx].Confidence {
		return false
	}
	b.facts = append(b.facts[:idx], b.facts[idx+1:]...)
	b.facts = append(b.facts, f)
	return true
}

// GetFact returns a fact by type and key. An empty key returns the first
// fact of the type regardless of its key.
func (b *Blackboard) GetFact(ftype, key string) (Fact, bool) {
	for _, f := range b.facts {
		if f.Type != ftype {
			continue
		}
		if key == "" || f.Key == key {
			return f, true
		}
	}
	return Fact{}, false
}

// FactsByType returns all facts of a type, possibly with different keys.
func (b *Blackboard) FactsByType(ftype string) []Fact {
	var out []Fact
	for _, f := range b.facts {
		if f.Type == ftype {
			out = append(out, f)
		}
	}
	return out
}

// HasFact reports whether a fact with the given type and key exists. An
// empty key matches any fact of the type.
func (b *Blackboard) HasFact(ftype, key string) bool {
	_, ok := b.GetFact(ftype, key)
	return ok
}

// Facts returns a copy of the fact list in storage order.
func (b *Blackboard) Facts() []Fact {
	out := make([]Fact, len(b.facts))
	copy(out, b.facts)
	return out
}

// Memory returns a copy of an agent's private memory. Agents without
// stored memory get an empty map.
func (b *Blackboard) Memory(agentID string) map[string]any {
	mem := b.memory[agentID]
	out := make(map[string]any, len(mem))
	for k, v := range mem {
		out[k] = v
	}
	return out
}

// MemoryValue returns one entry of an agent's private memory and whether
// it is set.
func (b *Blackboard) MemoryValue(agentID, key string) (any, bool) {
	v, ok := b.memory[agentID][key]
	return v, ok
}

// SetMemory replaces an agent's private memory wholesale.
func (b *Blackboard) SetMemory(agentID string, data map[string]any) {
	b.memory[agentID] = data
}

// UpdateMemory merges updates into an agent's private memory, creating
// the namespace if needed.
func (b *Blackboard) UpdateMemory(agentID string, updates map[string]any) {
	mem := b.memory[agentID]
	if mem == nil {
		mem = make(map[string]any, len(updates))
		b.memory[agentID] = mem
	}
	for k, v := range updates {
		mem[k] = v
	}
}

// HasMemory reports whether an agent has any memory stored.
func (b *Blackboard) HasMemory(agentID string) bool {
	return len(b.memory[agentID]) > 0
}

// Snapshot returns a deep copy of the board. The copy is fully
// independent: mutating the original does not affect the snapshot and
// vice versa. The engine takes one snapshot per phase so that every agent
// in the phase observes identical state.
func (b *Blackboard) Snapshot() *Blackboard {
	s := New()
	for k, v := range b.variables {
		s.variables[k] = cloneValue(v)
	}
	for name, items := range b.queues {
		s.queues[name] = cloneSlice(items)
	}
	if len(b.facts) > 0 {
		s.facts = make([]Fact, len(b.facts))
		for i, f := range b.facts {
			s.facts[i] = cloneFact(f)
		}
	}
	if len(b.events) > 0 {
		s.events = make([]Event, len(b.events))
		for i, e := range b.events {
			s.events[i] = cloneEvent(e)
		}
	}
	for id, mem := range b.memory {
		s.memory[id] = cloneMap(mem)
	}
	return s
}

// cloneValue deep-copies JSON-like values. Maps and slices are copied
// recursively; every other value is copied by assignment.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		return cloneSlice(t)
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = cloneValue(v)
	}
	return out
}

func cloneFact(f Fact) Fact {
	f.Value = cloneValue(f.Value)
	return f
}

func cloneEvent(e Event) Event {
	if e.Payload != nil {
		e.Payload = cloneMap(e.Payload)
	}
	return e
}
