package blackboard

// ToDict converts the board to a plain tree of maps, slices and scalars
// suitable for JSON encoding. The tree shares no storage with the board.
func (b *Blackboard) ToDict() map[string]any {
	events := make([]any, 0, len(b.events))
	for _, e := range b.events {
		events = append(events, eventToDict(e))
	}
	facts := make([]any, 0, len(b.facts))
	for _, f := range b.facts {
		facts = append(facts, factToDict(f))
	}
	queues := make(map[string]any, len(b.queues))
	for name, items := range b.queues {
		queues[name] = cloneSlice(items)
	}
	memory := make(map[string]any, len(b.memory))
	for id, mem := range b.memory {
		memory[id] = cloneMap(mem)
	}
	return map[string]any{
		"events":    events,
		"variables": cloneMap(b.variables),
		"queues":    queues,
		"facts":     facts,
		"memory":    memory,
	}
}

// FromDict rebuilds a board from a ToDict tree. Missing keys default to
// empty containers and entries of an unexpected shape are skipped, so
// partial or hand-written payloads load without error.
func FromDict(data map[string]any) *Blackboard {
	b := New()
	if data == nil {
		return b
	}
	switch vars := data["variables"].(type) {
	case map[string]any:
		for k, v := range vars {
			b.variables[k] = cloneValue(v)
		}
	}
	switch queues := data["queues"].(type) {
	case map[string]any:
		for name, raw := range queues {
			if items, ok := raw.([]any); ok {
				b.queues[name] = cloneSlice(items)
			}
		}
	case map[string][]any:
		for name, items := range queues {
			b.queues[name] = cloneSlice(items)
		}
	}
	switch facts := data["facts"].(type) {
	case []any:
		for _, raw := range facts {
			if m, ok := raw.(map[string]any); ok {
				b.facts = append(b.facts, factFromDict(m))
			}
		}
	case []map[string]any:
		for _, m := range facts {
			b.facts = append(b.facts, factFromDict(m))
		}
	}
	switch events := data["events"].(type) {
	case []any:
		for _, raw := range events {
			if m, ok := raw.(map[string]any); ok {
				b.events = append(b.events, eventFromDict(m))
			}
		}
	case []map[string]any:
		for _, m := range events {
			b.events = append(b.events, eventFromDict(m))
		}
	}
	switch memory := data["memory"].(type) {
	case map[string]any:
		for id, raw := range memory {
			if mem, ok := raw.(map[string]any); ok {
				b.memory[id] = cloneMap(mem)
			}
		}
	case map[string]map[string]any:
		for id, mem := range memory {
			b.memory[id] = cloneMap(mem)
		}
	}
	return b
}

func eventToDict(e Event) map[string]any {
	return map[string]any{
		"name":         e.Name,
		"payload":      cloneMap(e.Payload),
		"source_agent": e.SourceAgent,
		"timestamp":    e.Timestamp,
		"id":           e.ID,
	}
}

func eventFromDict(m map[string]any) Event {
	e := Event{Payload: make(map[string]any)}
	e.Name, _ = m["name"].(string)
	if p, ok := m["payload"].(map[string]any); ok {
		e.Payload = cloneMap(p)
	}
	e.SourceAgent, _ = m["source_agent"].(string)
	e.Timestamp = asFloat(m["timestamp"])
	e.ID, _ = m["id"].(string)
	return e
}

func factToDict(f Fact) map[string]any {
	return map[string]any{
		"type":         f.Type,
		"key":          f.Key,
		"value":        cloneValue(f.Value),
		"confidence":   f.Confidence,
		"source_agent": f.SourceAgent,
		"timestamp":    f.Timestamp,
	}
}

func factFromDict(m map[string]any) Fact {
	f := Fact{Confidence: 1}
	f.Type, _ = m["type"].(string)
	f.Key, _ = m["key"].(string)
	f.Value = cloneValue(m["value"])
	if raw, ok := m["confidence"]; ok {
		f.Confidence = asFloat(raw)
	}
	f.SourceAgent, _ = m["source_agent"].(string)
	f.Timestamp = asFloat(m["timestamp"])
	return f
}

// asFloat coerces the numeric types a deserialized tree may carry. JSON
// decoding yields float64; hand-built trees may carry Go ints.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
