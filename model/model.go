package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentree/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input: the resolved system prompt,
// the conversation and the tools of the active registry.
type Request struct {
	System   string           `json:"system"`
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
	Config   core.RunConfig   `json:"-"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Exactly one
// non-partial response ends a successful generation.
type Response struct {
	Partial      bool         `json:"partial"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the opaque (messages, config) -> assistant-message boundary.
// Generate streams partial responses and ends with one final response; a
// failure is reported on the error channel. Both channels are closed when
// generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned when a model closes its stream without a final response.
var ErrNoResponse = errors.New("model returned no final response")

// Collect drains a Generate call and returns the final assistant message.
// onPartial, when non-nil, observes partial chunks.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response)) (core.Message, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final *Response
		err   error
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return core.Message{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if r.Partial {
				if onPartial != nil {
					onPartial(r)
				}

				continue
			}

			resp := r
			final = &resp
		case e, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if e != nil && err == nil {
				err = e
			}
		}
	}

	if err != nil {
		return core.Message{}, err
	}

	if final == nil {
		return core.Message{}, ErrNoResponse
	}

	msg := final.Message
	msg.Role = core.RoleAssistant

	return msg, nil
}

// Definitions converts tool descriptors to model tool definitions.
func Definitions[T interface {
	Name() string
	Description() string
	Parameters() map[string]any
}](tools []T) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}

	return defs
}

func describe(m Model) string {
	info := m.Info()
	return fmt.Sprintf("%s/%s", info.Provider, info.Name)
}
