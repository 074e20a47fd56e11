// Package roster loads declarative agent rosters from YAML. A roster
// file names each agent with its triggers, scheduling knobs, persona
// instructions and output format; loading yields dynamic agent
// definitions ready for engine registration.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/features/agents/dynamic"
)

type (
	// File is the top-level roster document.
	File struct {
		// Version is reserved for future format revisions.
		Version int `yaml:"version,omitempty"`
		// Agents lists the declared agents.
		Agents []Entry `yaml:"agents"`
	}

	// Entry declares one agent. The engine-facing configuration fields
	// are inlined so roster files stay flat.
	Entry struct {
		Config       agent.Config   `yaml:",inline"`
		Instructions string         `yaml:"instructions"`
		ContextTurns int            `yaml:"context_turns,omitempty"`
		Output       dynamic.Format `yaml:"output,omitempty"`
	}
)

var validTriggers = map[agent.TriggerType]bool{
	agent.TriggerTurnBased: true,
	agent.TriggerKeyword:   true,
	agent.TriggerSilence:   true,
	agent.TriggerInterval:  true,
	agent.TriggerEvent:     true,
}

// Load reads and parses a roster file.
func Load(path string) ([]dynamic.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster: %s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes a roster document and validates every entry. Validation
// reports all problems at once rather than stopping at the first.
func Parse(data []byte) ([]dynamic.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty roster")
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, errors.New("roster declares no agents")
	}

	var (
		defs []dynamic.Definition
		errs []error
		seen = make(map[string]int)
	)
	for i, entry := range file.Agents {
		label := fmt.Sprintf("agent %d", i+1)
		if entry.Config.Name != "" {
			label = fmt.Sprintf("agent %d (%s)", i+1, entry.Config.Name)
		}

		if entry.Config.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", label))
		}
		if entry.Instructions == "" {
			errs = append(errs, fmt.Errorf("%s: instructions are required", label))
		}
		if entry.Config.Cooldown != nil && *entry.Config.Cooldown < 0 {
			errs = append(errs, fmt.Errorf("%s: cooldown must not be negative", label))
		}
		for _, tt := range entry.Config.TriggerTypes {
			if !validTriggers[tt] {
				errs = append(errs, fmt.Errorf("%s: unknown trigger type %q", label, tt))
			}
		}

		cfg := entry.Config.WithDefaults()
		if prev, dup := seen[cfg.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate agent ID %q (also agent %d)", label, cfg.ID, prev+1))
		} else {
			seen[cfg.ID] = i
		}

		defs = append(defs, dynamic.Definition{
			Config:       entry.Config,
			Instructions: entry.Instructions,
			ContextTurns: entry.ContextTurns,
			Format:       entry.Output,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

// Build constructs agents from roster definitions. Compilation errors
// from every definition are aggregated.
func Build(defs []dynamic.Definition, opts ...dynamic.Option) ([]*dynamic.Agent, error) {
	var (
		agents []*dynamic.Agent
		errs   []error
	)
	for _, def := range defs {
		a, err := dynamic.New(def, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		agents = append(agents, a)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return agents, nil
}
