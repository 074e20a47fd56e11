package engine

import (
	"strings"
)

// KeywordMatch pairs an agent with the configured keyword that matched
// the host's transcript text.
type KeywordMatch struct {
	AgentID   string
	AgentName string
	Keyword   string
}

// CheckKeywordTriggers reports which agents' trigger keywords occur in
// the text, case-insensitively as substrings, at most one match per
// agent. Hosts use the result to decide whether to run a keyword turn.
// A nil allowedIDs considers every agent.
func (e *Engine) CheckKeywordTriggers(text string, allowedIDs []string) []KeywordMatch {
	lower := strings.ToLower(text)

	var allowed map[string]struct{}
	if allowedIDs != nil {
		allowed = make(map[string]struct{}, len(allowedIDs))
		for _, id := range allowedIDs {
			allowed[id] = struct{}{}
		}
	}

	var out []KeywordMatch
	for _, reg := range e.snapshotRegs() {
		cfg := reg.cfg
		if allowed != nil {
			if _, ok := allowed[cfg.ID]; !ok {
				continue
			}
		}
		for _, kw := range cfg.TriggerKeywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				out = append(out, KeywordMatch{AgentID: cfg.ID, AgentName: cfg.Name, Keyword: kw})
				break
			}
		}
	}
	return out
}
