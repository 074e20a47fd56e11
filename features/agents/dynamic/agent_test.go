package dynamic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/blackboard"
	"goa.design/ensemble/model"
)

type fakeModel struct {
	lastReq model.Request
	object  map[string]any
	err     error
}

func (f *fakeModel) GenerateJSON(_ context.Context, req model.Request) (*model.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.Result{Object: f.object, Raw: "raw"}, nil
}

func definition() Definition {
	return Definition{
		Config: agent.Config{
			Name:  "Objection Coach",
			Model: "gpt-4o-mini",
		},
		Instructions: "You coach sellers. Deal phase: {{.State.phase}}.",
		ContextTurns: 2,
	}
}

func turnContext() *agent.Context {
	board := blackboard.New()
	board.SetVar("phase", "negotiation")
	board.UpdateMemory("objection_coach", map[string]any{"last_topic": "pricing"})
	return &agent.Context{
		SessionID: "sess-1",
		RecentSegments: []agent.TranscriptSegment{
			{Speaker: "USER", Text: "one"},
			{Speaker: "PROSPECT", Text: "two"},
			{Speaker: "USER", Text: "three"},
		},
		SharedState: map[string]any{"phase": "negotiation"},
		Board:       board,
		TurnCount:   4,
		Phase:       1,
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Definition{})
	require.Error(t, err)

	def := definition()
	def.Instructions = "{{.Broken"
	_, err = New(def)
	require.Error(t, err)

	def = definition()
	def.Format = Format{Schema: map[string]any{"type": 42}}
	_, err = New(def)
	require.Error(t, err)
}

func TestEvaluateWithoutModelSkips(t *testing.T) {
	a, err := New(definition())
	require.NoError(t, err)

	resp, err := a.Evaluate(context.Background(), turnContext())
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestEvaluateDefaultFormat(t *testing.T) {
	a, err := New(definition())
	require.NoError(t, err)

	fake := &fakeModel{object: map[string]any{
		"has_insight":    true,
		"message":        "Acknowledge the concern first.",
		"type":           "warning",
		"confidence":     0.8,
		"memory_updates": map[string]any{"last_topic": "objections"},
	}}
	a.SetModel(fake)

	resp, err := a.Evaluate(context.Background(), turnContext())
	require.NoError(t, err)
	require.NotNil(t, resp)

	require.Len(t, resp.Insights, 1)
	assert.Equal(t, "objection_coach", resp.Insights[0].AgentID)
	assert.Equal(t, agent.InsightWarning, resp.Insights[0].Type)
	assert.Equal(t, "Acknowledge the concern first.", resp.Insights[0].Content)
	assert.Equal(t, 0.8, resp.Insights[0].Confidence)
	assert.Equal(t, map[string]any{"last_topic": "objections"}, resp.MemoryUpdates)

	require.Len(t, fake.lastReq.Messages, 2)
	system := fake.lastReq.Messages[0].Content
	assert.Contains(t, system, "Deal phase: negotiation.")
	assert.Contains(t, system, "[YOUR MEMORY / SCRATCHPAD]")
	assert.Contains(t, system, "last_topic")
	assert.Contains(t, system, "has_insight")

	// ContextTurns is 2, so only the last two segments are included.
	user := fake.lastReq.Messages[1].Content
	assert.NotContains(t, user, "USER: one")
	assert.Contains(t, user, "PROSPECT: two")
	assert.Contains(t, user, "USER: three")
	assert.Equal(t, "gpt-4o-mini", fake.lastReq.Model)
}

func TestEvaluateCheckFieldGatesInsight(t *testing.T) {
	a, err := New(definition())
	require.NoError(t, err)
	a.SetModel(&fakeModel{object: map[string]any{
		"has_insight":    false,
		"message":        "should not surface",
		"memory_updates": map[string]any{"seen": true},
	}})

	resp, err := a.Evaluate(context.Background(), turnContext())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Insights)
	// State extraction is independent of the speak decision.
	assert.Equal(t, map[string]any{"seen": true}, resp.MemoryUpdates)
}

func TestEvaluateCustomMapping(t *testing.T) {
	def := definition()
	def.Format = Format{
		Instruction: "Return the analysis object.",
		Mapping: Mapping{
			RootKey:      "analysis",
			ContentField: "text",
			StateField:   "state",
			FactsField:   "facts",
			EventsField:  "events",
			DataField:    "ui_actions",
			DataKey:      "actions",
		},
	}
	a, err := New(def)
	require.NoError(t, err)
	a.SetModel(&fakeModel{object: map[string]any{
		"analysis": map[string]any{"text": "Budget confirmed.", "type": "fact"},
		"state":    map[string]any{"budget_confirmed": true},
		"facts": []any{
			map[string]any{"type": "budget", "value": "50k", "confidence": 0.9},
			map[string]any{"value": "missing type is skipped"},
		},
		"events":     []any{"budget_confirmed", map[string]any{"name": "stage_change", "payload": map[string]any{"to": "closing"}}},
		"ui_actions": []any{map[string]any{"kind": "highlight"}},
	}})

	resp, err := a.Evaluate(context.Background(), turnContext())
	require.NoError(t, err)
	require.NotNil(t, resp)

	require.Len(t, resp.Insights, 1)
	assert.Equal(t, agent.InsightFact, resp.Insights[0].Type)
	assert.Equal(t, map[string]any{"budget_confirmed": true}, resp.VariableUpdates)

	require.Len(t, resp.Facts, 1)
	assert.Equal(t, "budget", resp.Facts[0].Type)
	assert.Equal(t, 0.9, resp.Facts[0].Confidence)

	require.Len(t, resp.Events, 2)
	assert.Equal(t, "budget_confirmed", resp.Events[0].Name)
	assert.Equal(t, "stage_change", resp.Events[1].Name)
	assert.Equal(t, map[string]any{"to": "closing"}, resp.Events[1].Payload)

	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data, "actions")
}

func TestEvaluateEmptyRootSkipsInsight(t *testing.T) {
	def := definition()
	def.Format = Format{
		Instruction: "Return the analysis object.",
		Mapping:     Mapping{RootKey: "analysis", ContentField: "text"},
	}
	a, err := New(def)
	require.NoError(t, err)
	a.SetModel(&fakeModel{object: map[string]any{"other": "stuff"}})

	resp, err := a.Evaluate(context.Background(), turnContext())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Insights)
}

func TestEvaluateSchemaValidation(t *testing.T) {
	def := definition()
	def.Format = DefaultFormat()
	def.Format.Schema = map[string]any{
		"type":     "object",
		"required": []any{"has_insight"},
	}
	a, err := New(def)
	require.NoError(t, err)

	a.SetModel(&fakeModel{object: map[string]any{"has_insight": true, "message": "ok"}})
	_, err = a.Evaluate(context.Background(), turnContext())
	require.NoError(t, err)

	a.SetModel(&fakeModel{object: map[string]any{"message": "missing check"}})
	_, err = a.Evaluate(context.Background(), turnContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output validation")
}

func TestEvaluateModelErrors(t *testing.T) {
	a, err := New(definition())
	require.NoError(t, err)

	a.SetModel(&fakeModel{err: model.ErrNoContent})
	resp, err := a.Evaluate(context.Background(), turnContext())
	require.NoError(t, err)
	assert.Nil(t, resp)

	a.SetModel(&fakeModel{err: errors.New("boom")})
	_, err = a.Evaluate(context.Background(), turnContext())
	require.Error(t, err)
}

func TestEvaluateHonorsOverrides(t *testing.T) {
	a, err := New(definition())
	require.NoError(t, err)
	fake := &fakeModel{object: map[string]any{"has_insight": false}}
	a.SetModel(fake)

	narrower := -1
	turn := turnContext()
	turn.Overrides = map[string]agent.Override{
		"objection_coach": {
			ContextTurnsModifier: &narrower,
			InstructionsAppend:   "Answer in bullet points.",
		},
	}

	_, err = a.Evaluate(context.Background(), turn)
	require.NoError(t, err)

	assert.Contains(t, fake.lastReq.Messages[0].Content, "Answer in bullet points.")
	user := fake.lastReq.Messages[1].Content
	assert.NotContains(t, user, "PROSPECT: two")
	assert.Contains(t, user, "USER: three")
}

func TestEvaluateTriggerContext(t *testing.T) {
	def := definition()
	def.Config.TriggerTypes = []agent.TriggerType{agent.TriggerTurnBased, agent.TriggerKeyword}
	a, err := New(def)
	require.NoError(t, err)
	fake := &fakeModel{object: map[string]any{"has_insight": false}}
	a.SetModel(fake)

	turn := turnContext()
	turn.TriggerType = agent.TriggerKeyword
	turn.TriggerMetadata = map[string]any{"keyword": "budget"}

	_, err = a.Evaluate(context.Background(), turn)
	require.NoError(t, err)
	assert.Contains(t, fake.lastReq.Messages[0].Content, `activated by keyword: "budget"`)
}

func TestParseInsightType(t *testing.T) {
	assert.Equal(t, agent.InsightWarning, parseInsightType("WARNING"))
	assert.Equal(t, agent.InsightSuggestion, parseInsightType("unknown"))
	assert.Equal(t, agent.InsightSuggestion, parseInsightType(""))
}
