package agent

import (
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(runCtx *core.RunContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(runCtx *core.RunContext) (string, error) { return f(runCtx) }

// Instruction is the configured system prompt of an agent: either static
// text or a dynamic provider. The resolved text is rendered as a
// text/template with {{.Agent}}, {{.Depth}} and {{.Tools}} available.
type Instruction struct {
	text     string
	provider Provider
	literal  bool
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewLiteralInstruction creates an Instruction used verbatim, without
// template rendering. Use it for text that is not under the caller's control.
func NewLiteralInstruction(text string) Instruction { return Instruction{text: text, literal: true} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the rendered instruction text for the agent running under
// runCtx with the given tool names.
func (i Instruction) Resolve(runCtx *core.RunContext, toolNames []string) (string, error) {
	text := i.text

	if i.provider != nil {
		var err error

		text, err = i.provider.Instruction(runCtx)
		if err != nil {
			return "", err
		}
	}

	if i.literal {
		return text, nil
	}

	return util.RenderTemplate(text, map[string]any{
		"Agent": runCtx.Agent.Name,
		"Depth": runCtx.Depth,
		"Tools": toolNames,
	})
}
