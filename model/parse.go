package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotObject indicates the completion text did not contain a JSON
// object.
var ErrNotObject = errors.New("model: completion is not a JSON object")

// ParseObject extracts the first JSON object from completion text.
// Models frequently wrap JSON in markdown fences or surround it with
// prose, so the parser locates the outermost braces rather than
// requiring the whole completion to be valid JSON.
func ParseObject(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrNoContent
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, ErrNotObject
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotObject, err)
	}
	return obj, nil
}
