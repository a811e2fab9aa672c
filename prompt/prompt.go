// Package prompt holds the prompt templates used to synthesize system
// prompts for agents. A Set is loaded from YAML; the embedded default set is
// used when no file is configured.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentree/internal/util"
)

//go:embed prompts.yaml
var defaultYAML []byte

// Set is a named collection of prompt templates. SystemPrompt and StepHeader
// are text/template strings; SystemPrompt sees {{.Tools}}, StepHeader sees
// {{.Step}}.
type Set struct {
	SystemPrompt      string `yaml:"system_prompt"`
	ReactInstructions string `yaml:"react_instructions"`
	SubagentReminder  string `yaml:"subagent_reminder"`
	StepHeader        string `yaml:"step_header"`
}

// ErrEmptySystemPrompt is returned by Parse when the set lacks a system prompt.
var ErrEmptySystemPrompt = errors.New("prompt set has no system_prompt")

// Default returns the embedded prompt set.
func Default() *Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("prompt: embedded defaults: %v", err))
	}

	return s
}

// Parse decodes a YAML prompt set. Keys missing from data keep the embedded
// default text, except system_prompt which must resolve to a non-empty value.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	if strings.TrimSpace(s.SystemPrompt) == "" {
		return nil, ErrEmptySystemPrompt
	}

	return &s, nil
}

// Load reads a prompt set from path, layering it over the embedded defaults.
// An empty path returns the defaults.
func Load(path string) (*Set, error) {
	base := Default()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("parse prompts %s: %w", path, err)
	}

	if strings.TrimSpace(base.SystemPrompt) == "" {
		return nil, ErrEmptySystemPrompt
	}

	return base, nil
}

// Base renders the system prompt template for the given tool names.
func (s *Set) Base(toolNames []string) (string, error) {
	return util.RenderTemplate(s.SystemPrompt, map[string]any{
		"Tools": strings.Join(toolNames, ", "),
	})
}

// System renders the full synthesized system prompt: the base template
// followed by the reasoning instructions.
func (s *Set) System(toolNames []string) (string, error) {
	base, err := s.Base(toolNames)
	if err != nil {
		return "", err
	}

	return joinSections(base, s.ReactInstructions), nil
}

// WithReminder appends the sub-agent reminder to a caller supplied prompt.
func (s *Set) WithReminder(p string) string {
	if strings.TrimSpace(s.SubagentReminder) == "" {
		return p
	}

	return joinSections(p, s.SubagentReminder)
}

// ForStep builds the instruction of an orchestrated step agent: the
// synthesized prompt for toolNames followed by the rendered step header.
func (s *Set) ForStep(step string, toolNames []string) (string, error) {
	base, err := s.System(toolNames)
	if err != nil {
		return "", err
	}

	return s.WithStep(base, step)
}

// WithStep appends the rendered step header for step to base.
func (s *Set) WithStep(base, step string) (string, error) {
	header, err := util.RenderTemplate(s.StepHeader, map[string]any{"Step": step})
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(header) == "" {
		header = step
	}

	return joinSections(base, header), nil
}

func joinSections(a, b string) string {
	a = strings.TrimRight(a, "\n ")
	b = strings.TrimSpace(b)

	switch {
	case b == "":
		return a
	case a == "":
		return b
	default:
		return a + "\n\n" + b
	}
}
