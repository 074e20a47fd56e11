package dynamic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/blackboard"
	"goa.design/ensemble/model"
	"goa.design/ensemble/telemetry"
)

type (
	// Agent evaluates a Definition against the turn context. It
	// implements agent.Agent and model.Consumer so the engine injects
	// the model client at registration.
	Agent struct {
		cfg    agent.Config
		def    Definition
		format Format
		tmpl   *template.Template
		schema *jsonschema.Schema
		logger telemetry.Logger

		mu     sync.RWMutex
		client model.Client
	}

	// Option customizes an Agent.
	Option func(*Agent)

	promptData struct {
		State       map[string]any
		Memory      map[string]any
		UserContext string
		SessionID   string
		TurnCount   int
	}
)

// WithLogger sets the logger used for non-fatal diagnostics such as
// template rendering failures.
func WithLogger(l telemetry.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New builds an agent from a definition. The instructions template and
// the output schema are compiled eagerly so malformed definitions fail
// at load time, not mid-turn.
func New(def Definition, opts ...Option) (*Agent, error) {
	if def.Config.Name == "" {
		return nil, errors.New("dynamic: agent name is required")
	}
	cfg := def.Config.WithDefaults()

	format := def.Format
	if format.isZero() {
		format = DefaultFormat()
	}

	tmpl, err := template.New(cfg.ID).Parse(def.Instructions)
	if err != nil {
		return nil, fmt.Errorf("dynamic: parse instructions for %q: %w", cfg.Name, err)
	}

	var schema *jsonschema.Schema
	if len(format.Schema) > 0 {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema.json", format.Schema); err != nil {
			return nil, fmt.Errorf("dynamic: add output schema for %q: %w", cfg.Name, err)
		}
		schema, err = c.Compile("schema.json")
		if err != nil {
			return nil, fmt.Errorf("dynamic: compile output schema for %q: %w", cfg.Name, err)
		}
	}

	a := &Agent{
		cfg:    cfg,
		def:    def,
		format: format,
		tmpl:   tmpl,
		schema: schema,
		logger: telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the engine-facing configuration.
func (a *Agent) Config() agent.Config { return a.cfg }

// SetModel injects the model client. Called by the engine at
// registration and on credential rotation.
func (a *Agent) SetModel(c model.Client) {
	a.mu.Lock()
	a.client = c
	a.mu.Unlock()
}

func (a *Agent) modelClient() model.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// Evaluate renders the prompt, calls the model and maps the reply into
// an agent response. It returns nil without error when no model client
// is configured or the model has nothing to say.
func (a *Agent) Evaluate(ctx context.Context, turn *agent.Context) (*agent.Response, error) {
	client := a.modelClient()
	if client == nil {
		return nil, nil
	}

	var ov agent.Override
	if turn.Overrides != nil {
		ov = turn.Overrides[a.cfg.ID]
	}

	memory := a.memorySnapshot(turn)
	system := a.systemPrompt(ctx, turn, ov, memory)
	transcript := a.transcriptWindow(turn, ov)

	messages := []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: "### TRANSCRIPT:\n" + transcript},
	}
	res, err := client.GenerateJSON(ctx, model.Request{Model: a.cfg.Model, Messages: messages})
	if errors.Is(err, model.ErrNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dynamic: %s: %w", a.cfg.Name, err)
	}

	if a.schema != nil {
		if err := a.schema.Validate(res.Object); err != nil {
			return nil, fmt.Errorf("dynamic: %s: output validation: %w", a.cfg.Name, err)
		}
	}

	resp := a.mapReply(res.Object)
	resp.DebugInfo = map[string]any{
		"model":          a.cfg.Model,
		"prompt_system":  system,
		"prompt_user":    messages[1].Content,
		"raw_completion": res.Raw,
	}
	return resp, nil
}

// memorySnapshot reads the agent's private memory, preferring the board
// snapshot and falling back to the legacy flat state entry.
func (a *Agent) memorySnapshot(turn *agent.Context) map[string]any {
	if turn.Board != nil {
		return turn.Board.Memory(a.cfg.ID)
	}
	if mem, ok := turn.SharedState["memory_"+a.cfg.ID].(map[string]any); ok {
		return mem
	}
	return map[string]any{}
}

func (a *Agent) systemPrompt(ctx context.Context, turn *agent.Context, ov agent.Override, memory map[string]any) string {
	var b strings.Builder

	if turn.UserContext != "" {
		b.WriteString(turn.UserContext)
		b.WriteString("\n\n")
	}
	if turn.LanguageDirective != "" {
		b.WriteString(turn.LanguageDirective)
		b.WriteString("\n\n")
	}

	b.WriteString(a.renderInstructions(ctx, turn, memory))
	b.WriteString("\n")

	if ov.InstructionsAppend != "" {
		b.WriteString("\n")
		b.WriteString(ov.InstructionsAppend)
		b.WriteString("\n")
	}

	scratch, err := json.MarshalIndent(memory, "", "  ")
	if err != nil {
		scratch = []byte("{}")
	}
	b.WriteString("\n[YOUR MEMORY / SCRATCHPAD]\n")
	b.Write(scratch)
	b.WriteString("\n")

	if len(turn.RAGDocs) > 0 {
		b.WriteString("\n[RELEVANT KNOWLEDGE]\n")
		b.WriteString(strings.Join(turn.RAGDocs, "\n---\n"))
		b.WriteString("\n")
	}

	if tc := triggerContext(turn); tc != "" {
		b.WriteString(tc)
	}

	b.WriteString("\n")
	b.WriteString(a.format.Instruction)
	return b.String()
}

// renderInstructions executes the persona template. Rendering failures
// fall back to the raw instructions so a bad reference degrades the
// prompt instead of killing the agent.
func (a *Agent) renderInstructions(ctx context.Context, turn *agent.Context, memory map[string]any) string {
	data := promptData{
		State:       turn.SharedState,
		Memory:      memory,
		UserContext: turn.UserContext,
		SessionID:   turn.SessionID,
		TurnCount:   turn.TurnCount,
	}
	var out strings.Builder
	if err := a.tmpl.Execute(&out, data); err != nil {
		a.logger.Warn(ctx, "instructions template failed, using raw prompt",
			"agent", a.cfg.ID, "err", err)
		return a.def.Instructions
	}
	return out.String()
}

func triggerContext(turn *agent.Context) string {
	switch turn.TriggerType {
	case agent.TriggerKeyword:
		if kw, ok := turn.TriggerMetadata["keyword"].(string); ok && kw != "" {
			return fmt.Sprintf("\n[TRIGGER] You were activated by keyword: %q\n", kw)
		}
	case agent.TriggerSilence:
		if d, ok := asFloat(turn.TriggerMetadata["silence_duration"]); ok {
			return fmt.Sprintf("\n[TRIGGER] You were activated after %.1f seconds of silence.\n", d)
		}
	}
	return ""
}

// transcriptWindow formats the last N segments, where N is the
// definition's window adjusted by the per-turn override. A window of
// zero or less means the whole transcript.
func (a *Agent) transcriptWindow(turn *agent.Context, ov agent.Override) string {
	n := a.def.ContextTurns
	if n == 0 {
		n = DefaultContextTurns
	}
	if ov.ContextTurnsModifier != nil {
		n += *ov.ContextTurnsModifier
	}
	segments := turn.RecentSegments
	if n > 0 && len(segments) > n {
		segments = segments[len(segments)-n:]
	}
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, seg.Speaker+": "+seg.Text)
	}
	return strings.Join(lines, "\n")
}

// mapReply routes reply fields into an agent response per the format
// mapping.
func (a *Agent) mapReply(reply map[string]any) *agent.Response {
	m := a.format.Mapping
	resp := &agent.Response{}

	root := reply
	if m.RootKey != "" {
		root, _ = reply[m.RootKey].(map[string]any)
	}

	speak := true
	if m.CheckField != "" {
		speak, _ = reply[m.CheckField].(bool)
	} else if m.RootKey != "" && len(root) == 0 {
		speak = false
	}

	if speak {
		if content, _ := root[fieldOr(m.ContentField, "content")].(string); content != "" {
			confidence := 1.0
			if c, ok := asFloat(root[fieldOr(m.ConfidenceField, "confidence")]); ok {
				confidence = c
			}
			typ, _ := root[fieldOr(m.TypeField, "type")].(string)
			insight := a.cfg.NewInsight(parseInsightType(typ), content, confidence)
			if m.MetadataField != "" {
				insight.Metadata, _ = root[m.MetadataField].(map[string]any)
			}
			resp.Insights = append(resp.Insights, insight)
		}
	}

	if m.StateField != "" {
		if updates, ok := reply[m.StateField].(map[string]any); ok && len(updates) > 0 {
			if m.StateField == "memory_updates" {
				resp.MemoryUpdates = updates
			} else {
				resp.VariableUpdates = updates
			}
		}
	}

	if m.FactsField != "" {
		if entries, ok := reply[m.FactsField].([]any); ok {
			for _, entry := range entries {
				fm, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				typ, _ := fm["type"].(string)
				if typ == "" {
					continue
				}
				fact := blackboard.Fact{Type: typ, Value: fm["value"]}
				fact.Key, _ = fm["key"].(string)
				if c, ok := asFloat(fm["confidence"]); ok {
					fact.Confidence = c
				}
				resp.Facts = append(resp.Facts, fact)
			}
		}
	}

	if m.EventsField != "" {
		if entries, ok := reply[m.EventsField].([]any); ok {
			for _, entry := range entries {
				switch v := entry.(type) {
				case string:
					if v != "" {
						resp.Events = append(resp.Events, blackboard.Event{Name: v})
					}
				case map[string]any:
					name, _ := v["name"].(string)
					if name == "" {
						continue
					}
					payload, _ := v["payload"].(map[string]any)
					resp.Events = append(resp.Events, blackboard.Event{Name: name, Payload: payload})
				}
			}
		}
	}

	if m.DataField != "" {
		if payload, ok := reply[m.DataField]; ok && payload != nil {
			key := m.DataKey
			if key == "" {
				key = m.DataField
			}
			resp.Data = map[string]any{key: payload}
		}
	}

	return resp
}

func fieldOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func parseInsightType(s string) agent.InsightType {
	switch agent.InsightType(strings.ToLower(s)) {
	case agent.InsightSuggestion, agent.InsightWarning, agent.InsightOpportunity,
		agent.InsightFact, agent.InsightPraise, agent.InsightError:
		return agent.InsightType(strings.ToLower(s))
	default:
		return agent.InsightSuggestion
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
