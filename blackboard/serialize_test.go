package blackboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populated() *Blackboard {
	b := New()
	b.SetVar("topic", "pricing")
	b.SetVar("sys.turn_count", 7)
	b.SetVar("nested", map[string]any{"list": []any{1.5, "two"}})
	b.PushQueueItems("questions", []any{"q1", "q2"})
	b.ClearQueue("drained")
	b.AddFact(Fact{Type: "budget", Value: 75000.0, Confidence: 0.9, SourceAgent: "extractor", Timestamp: 10})
	b.AddFact(Fact{Type: "stakeholder", Key: "cfo", Value: "Ada", Confidence: 0.8, SourceAgent: "extractor", Timestamp: 11})
	b.Emit(Event{Name: "question_detected", Payload: map[string]any{"text": "cost?"}, SourceAgent: "listener", Timestamp: 12.5, ID: "ev-1"})
	b.UpdateMemory("coach", map[string]any{"tips_given": 3.0})
	return b
}

func TestToDictShape(t *testing.T) {
	d := populated().ToDict()

	require.Contains(t, d, "events")
	require.Contains(t, d, "variables")
	require.Contains(t, d, "queues")
	require.Contains(t, d, "facts")
	require.Contains(t, d, "memory")

	events, ok := d["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
	ev, ok := events[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "question_detected", ev["name"])
	assert.Equal(t, "listener", ev["source_agent"])
	assert.Equal(t, 12.5, ev["timestamp"])
	assert.Equal(t, "ev-1", ev["id"])
	assert.Equal(t, map[string]any{"text": "cost?"}, ev["payload"])

	facts, ok := d["facts"].([]any)
	require.True(t, ok)
	require.Len(t, facts, 2)
	f, ok := facts[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stakeholder", f["type"])
	assert.Equal(t, "cfo", f["key"])
	assert.Equal(t, "Ada", f["value"])
	assert.Equal(t, 0.8, f["confidence"])
}

func TestToDictIsDetached(t *testing.T) {
	b := populated()
	d := b.ToDict()

	d["variables"].(map[string]any)["topic"] = "clobbered"
	d["queues"].(map[string]any)["questions"].([]any)[0] = "clobbered"
	d["memory"].(map[string]any)["coach"].(map[string]any)["tips_given"] = -1

	v, _ := b.Var("topic")
	assert.Equal(t, "pricing", v)
	assert.Equal(t, []any{"q1", "q2"}, b.Queue("questions"))
	tips, _ := b.MemoryValue("coach", "tips_given")
	assert.Equal(t, 3.0, tips)
}

func TestRoundTrip(t *testing.T) {
	b := populated()
	got := FromDict(b.ToDict())

	assert.Equal(t, b.ToDict(), got.ToDict())

	v, _ := got.Var("nested")
	assert.Equal(t, map[string]any{"list": []any{1.5, "two"}}, v)
	assert.Equal(t, []any{"q1", "q2"}, got.Queue("questions"))
	assert.True(t, got.HasQueue("drained"))
	f, ok := got.GetFact("stakeholder", "cfo")
	require.True(t, ok)
	assert.Equal(t, "Ada", f.Value)
	assert.Equal(t, 0.8, f.Confidence)
	require.Len(t, got.Events(), 1)
	assert.Equal(t, "ev-1", got.Events()[0].ID)
	tips, _ := got.MemoryValue("coach", "tips_given")
	assert.Equal(t, 3.0, tips)
}

func TestRoundTripThroughJSON(t *testing.T) {
	b := populated()

	raw, err := json.Marshal(b.ToDict())
	require.NoError(t, err)

	var tree map[string]any
	require.NoError(t, json.Unmarshal(raw, &tree))

	got := FromDict(tree)
	// JSON turns all numbers into float64; the populated board already
	// uses float values so the trees must match exactly.
	exp := b.ToDict()
	exp["variables"].(map[string]any)["sys.turn_count"] = 7.0
	assert.Equal(t, exp, got.ToDict())
}

func TestFromDictTolerance(t *testing.T) {
	b := FromDict(nil)
	assert.Empty(t, b.Variables())

	b = FromDict(map[string]any{})
	assert.Empty(t, b.Variables())
	assert.Empty(t, b.Facts())
	assert.Empty(t, b.Events())

	// Entries of unexpected shapes are skipped, valid ones load.
	b = FromDict(map[string]any{
		"variables": map[string]any{"ok": true},
		"queues":    map[string]any{"good": []any{1.0}, "bad": "not a list"},
		"facts":     []any{map[string]any{"type": "budget", "value": 5.0}, "junk"},
		"events":    "nonsense",
		"memory":    map[string]any{"coach": map[string]any{"k": "v"}, "bad": 17},
	})
	v, _ := b.Var("ok")
	assert.Equal(t, true, v)
	assert.Equal(t, []any{1.0}, b.Queue("good"))
	assert.False(t, b.HasQueue("bad"))
	require.Len(t, b.Facts(), 1)
	assert.Equal(t, 1.0, b.Facts()[0].Confidence, "missing confidence defaults to 1")
	assert.Empty(t, b.Events())
	assert.True(t, b.HasMemory("coach"))
	assert.False(t, b.HasMemory("bad"))
}

func TestFromDictAcceptsTypedContainers(t *testing.T) {
	// Hosts that build trees in Go often use the concrete map and slice
	// types rather than any-valued ones.
	b := FromDict(map[string]any{
		"queues": map[string][]any{"work": {1, 2}},
		"facts":  []map[string]any{{"type": "t", "value": "v", "confidence": 0.5}},
		"events": []map[string]any{{"name": "e", "source_agent": "a", "timestamp": 1}},
		"memory": map[string]map[string]any{"agent": {"k": 1}},
	})
	assert.Equal(t, []any{1, 2}, b.Queue("work"))
	require.Len(t, b.Facts(), 1)
	assert.Equal(t, 0.5, b.Facts()[0].Confidence)
	require.Len(t, b.Events(), 1)
	assert.Equal(t, 1.0, b.Events()[0].Timestamp)
	assert.True(t, b.HasMemory("agent"))
}
