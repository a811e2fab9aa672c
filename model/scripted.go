package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentree/core"
)

// ErrScriptExhausted is returned when a ScriptedModel runs out of turns.
var ErrScriptExhausted = errors.New("scripted model: no more turns")

// Turn is one scripted model reply: either a message or an error.
type Turn struct {
	Message core.Message
	Err     error
}

// ScriptedModel is a deterministic in-memory Model for tests and examples.
// Each Generate call consumes the next turn and records the request.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	turns    []Turn
	requests []Request
	reply    func(req Request) (core.Message, error)
}

// NewScriptedModel creates a model replaying turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		turns: turns,
	}
}

// NewFuncModel creates a model computing each reply from the request.
func NewFuncModel(reply func(req Request) (core.Message, error)) *ScriptedModel {
	m := NewScriptedModel()
	m.reply = reply

	return m
}

// Say is a convenience Turn producing an assistant message.
func Say(content string, calls ...core.ToolCall) Turn {
	return Turn{Message: core.AssistantMessage(content, calls...)}
}

// Fail is a convenience Turn producing an error.
func Fail(err error) Turn { return Turn{Err: err} }

// Call is a convenience constructor for a tool call.
func Call(id, name string, args map[string]any) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: args}
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	req.Messages = append([]core.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)

	var turn Turn

	switch {
	case m.reply != nil:
		turn.Message, turn.Err = m.reply(req)
	case len(m.turns) == 0:
		turn.Err = ErrScriptExhausted
	default:
		turn = m.turns[0]
		m.turns = m.turns[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		respCh <- Response{Message: turn.Message, FinishReason: "stop"}
	}()

	return respCh, errCh
}

// Requests returns every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Remaining returns the number of unconsumed turns.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.turns)
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
