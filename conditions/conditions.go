// Package conditions implements the predicate language that gates agent
// execution against Blackboard state.
//
// Trigger conditions let agents declare preconditions that must hold
// before they run, which avoids pointless model calls. Supported
// operators:
//
//   - eq, neq: equality comparisons
//   - gt, gte, lt, lte: ordered comparisons
//   - in, not_in: membership in a list value
//   - contains: list membership, substring or map key presence
//   - exists, not_exists: truthiness of the resolved value
//   - present: source key presence regardless of value
//   - empty, not_empty: collection size checks
//   - mod: modulo arithmetic, e.g. run every fifth turn
//
// Evaluation is total. Type mismatches and invalid operations yield
// false, unknown operators yield true, and no input makes the evaluator
// panic. The engine relies on this: a bad condition must never poison a
// turn.
package conditions

import (
	"context"
	"math"
	"reflect"
	"strings"

	"goa.design/ensemble/blackboard"
	"goa.design/ensemble/telemetry"
)

// Expression modes. ModeAll requires every rule to pass, ModeAny at least
// one. An empty mode means ModeAll.
const (
	ModeAll = "all"
	ModeAny = "any"
)

// Rule operators.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpNotIn    = "not_in"
	OpContains = "contains"
	OpExists   = "exists"
	OpPresent  = "present"
	OpNotExist = "not_exists"
	OpEmpty    = "empty"
	OpNotEmpty = "not_empty"
	OpMod      = "mod"
)

type (
	// Expression is a trigger condition: a set of rules combined under a
	// mode. A nil expression or an expression without rules is vacuously
	// true.
	Expression struct {
		Mode  string `json:"mode,omitempty" yaml:"mode,omitempty"`
		Rules []Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	}

	// Rule is a single predicate. Exactly one source field should be set;
	// when several are set the first of Var, Fact, Queue, Memory, Meta
	// wins. A rule with no source resolves to a missing nil value.
	Rule struct {
		// Var resolves against the board's session variables.
		Var string `json:"var,omitempty" yaml:"var,omitempty"`
		// Fact resolves to the value of the deduplicated fact of this
		// type, optionally narrowed by FactKey.
		Fact    string `json:"fact,omitempty" yaml:"fact,omitempty"`
		FactKey string `json:"fact_key,omitempty" yaml:"fact_key,omitempty"`
		// Queue resolves to the queue's item list, empty if missing.
		Queue string `json:"queue,omitempty" yaml:"queue,omitempty"`
		// Memory resolves against the evaluated agent's private memory.
		// A dotted key "other.k" reads agent "other"'s memory instead.
		Memory string `json:"memory,omitempty" yaml:"memory,omitempty"`
		// Meta resolves against engine execution metadata: turn_count,
		// trigger_type, phase, session_id.
		Meta string `json:"meta,omitempty" yaml:"meta,omitempty"`

		// Op is the operator; empty means eq.
		Op string `json:"op,omitempty" yaml:"op,omitempty"`
		// Value is the operand most operators compare against.
		Value any `json:"value,omitempty" yaml:"value,omitempty"`
		// Result is the expected remainder for the mod operator.
		Result any `json:"result,omitempty" yaml:"result,omitempty"`
	}

	// Evaluator evaluates trigger conditions against Blackboard state.
	Evaluator struct {
		logger telemetry.Logger
	}
)

// NewEvaluator returns an Evaluator. A nil logger is replaced with a
// no-op logger.
func NewEvaluator(logger telemetry.Logger) *Evaluator {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Evaluator{logger: logger}
}

// Evaluate reports whether the expression holds for the given board,
// execution metadata and agent. It never panics and never returns an
// error: rules that cannot be evaluated count as false.
func (ev *Evaluator) Evaluate(ctx context.Context, expr *Expression, board *blackboard.Blackboard, meta map[string]any, agentID string) bool {
	if expr == nil || len(expr.Rules) == 0 {
		return true
	}
	if board == nil {
		board = blackboard.New()
	}
	switch expr.Mode {
	case "", ModeAll:
		for _, r := range expr.Rules {
			if !ev.evalRule(ctx, r, board, meta, agentID) {
				return false
			}
		}
		return true
	case ModeAny:
		for _, r := range expr.Rules {
			if ev.evalRule(ctx, r, board, meta, agentID) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func (ev *Evaluator) evalRule(ctx context.Context, r Rule, board *blackboard.Blackboard, meta map[string]any, agentID string) (pass bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ev.logger.Debug(ctx, "condition rule recovered", "op", r.Op, "agent_id", agentID, "panic", rec)
			pass = false
		}
	}()

	actual, found := resolveSource(r, board, meta, agentID)

	op := r.Op
	if op == "" {
		op = OpEq
	}
	switch op {
	case OpEq:
		return equalValues(actual, r.Value)
	case OpNeq:
		return !equalValues(actual, r.Value)
	case OpGt:
		c, ok := compareOrdered(actual, r.Value)
		return ok && c > 0
	case OpGte:
		c, ok := compareOrdered(actual, r.Value)
		return ok && c >= 0
	case OpLt:
		c, ok := compareOrdered(actual, r.Value)
		return ok && c < 0
	case OpLte:
		c, ok := compareOrdered(actual, r.Value)
		return ok && c <= 0
	case OpIn:
		if !truthy(r.Value) {
			return false
		}
		member, ok := membership(actual, r.Value)
		return ok && member
	case OpNotIn:
		if !truthy(r.Value) {
			return true
		}
		member, ok := membership(actual, r.Value)
		return ok && !member
	case OpContains:
		if actual == nil {
			return false
		}
		member, ok := membership(r.Value, actual)
		return ok && member
	case OpExists:
		return truthy(actual)
	case OpPresent:
		return found
	case OpNotExist:
		return !truthy(actual)
	case OpEmpty:
		if actual == nil {
			return true
		}
		return !truthy(actual)
	case OpNotEmpty:
		if actual == nil {
			return false
		}
		return truthy(actual)
	case OpMod:
		return modMatches(actual, r.Value, r.Result)
	}

	// Unknown operator: lenient pass, but worth a warning.
	ev.logger.Warn(ctx, "unknown condition operator", "op", op, "agent_id", agentID)
	return true
}

// resolveSource extracts (value, present) from the rule's source. present
// reports whether the key exists in its container regardless of value, so
// the present operator can see keys holding falsy values.
func resolveSource(r Rule, board *blackboard.Blackboard, meta map[string]any, agentID string) (any, bool) {
	switch {
	case r.Var != "":
		return board.Var(r.Var)
	case r.Fact != "":
		f, ok := board.GetFact(r.Fact, r.FactKey)
		if !ok {
			return nil, false
		}
		return f.Value, true
	case r.Queue != "":
		return board.Queue(r.Queue), board.HasQueue(r.Queue)
	case r.Memory != "":
		owner, key := agentID, r.Memory
		if i := strings.Index(key, "."); i >= 0 {
			owner, key = key[:i], key[i+1:]
		}
		return board.MemoryValue(owner, key)
	case r.Meta != "":
		v, ok := meta[r.Meta]
		return v, ok
	}
	return nil, false
}

// equalValues compares two values, treating all numeric types as mutually
// comparable. Non-numeric values compare by deep equality.
func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if _, ok := toFloat(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareOrdered orders two values when they are mutually comparable:
// both numeric or both strings. ok is false otherwise, including when
// either value is nil.
func compareOrdered(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// membership reports whether item occurs in container: element equality
// for lists, substring for strings, key presence for maps. ok is false
// when the container kind does not support membership tests.
func membership(item, container any) (member, ok bool) {
	switch c := container.(type) {
	case []any:
		for _, v := range c {
			if equalValues(item, v) {
				return true, true
			}
		}
		return false, true
	case string:
		s, isStr := item.(string)
		if !isStr {
			return false, false
		}
		return strings.Contains(c, s), true
	case map[string]any:
		s, isStr := item.(string)
		if !isStr {
			return false, true
		}
		_, present := c[s]
		return present, true
	}
	rv := reflect.ValueOf(container)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if equalValues(item, rv.Index(i).Interface()) {
				return true, true
			}
		}
		return false, true
	}
	return false, false
}

// truthy reports whether a value is non-nil, non-zero, non-empty and not
// false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

// modMatches implements the mod operator: actual % divisor equals the
// expected remainder (zero when unset). The remainder follows floored
// division so negative turn deltas behave like the positive case.
func modMatches(actual, divisor, result any) bool {
	a, aok := toFloat(actual)
	d, dok := toFloat(divisor)
	if !aok || !dok || d == 0 {
		return false
	}
	want := 0.0
	if result != nil {
		w, wok := toFloat(result)
		if !wok {
			return false
		}
		want = w
	}
	rem := math.Mod(a, d)
	if rem != 0 && (rem < 0) != (d < 0) {
		rem += d
	}
	return rem == want
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
