package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"bare object", `{"a": 1}`, map[string]any{"a": float64(1)}},
		{"fenced", "```json\n{\"a\": 1}\n```", map[string]any{"a": float64(1)}},
		{"surrounded by prose", `Here you go: {"a": 1}. Anything else?`, map[string]any{"a": float64(1)}},
		{"nested braces", `{"outer": {"inner": true}}`, map[string]any{"outer": map[string]any{"inner": true}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseObject(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseObjectErrors(t *testing.T) {
	_, err := ParseObject("")
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = ParseObject("   \n ")
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = ParseObject("no json here")
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = ParseObject(`{"broken": `)
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = ParseObject(`[1, 2, 3]`)
	assert.ErrorIs(t, err, ErrNotObject)
}
