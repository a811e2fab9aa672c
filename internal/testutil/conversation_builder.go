package testutil

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentree/core"
)

// ConversationBuilder provides a fluent helper for constructing
// conversations in tests. Call ids are assigned sequentially ("call-1",
// "call-2", ...) and Result answers the oldest unanswered call of the same
// tool.
//
//	conv := testutil.NewConversationBuilder().
//	  Human("2+2?").
//	  Call("calculator", map[string]any{"expression": "2+2"}).
//	  Result("calculator", `{"result":4}`).
//	  Assistant("4").
//	  Build()
type ConversationBuilder struct {
	msgs    []core.Message
	next    int
	pending map[string][]string
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder {
	return &ConversationBuilder{pending: map[string][]string{}}
}

// Human appends a human message (chainable).
func (b *ConversationBuilder) Human(text string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.HumanMessage(text))
	return b
}

// Assistant appends a plain assistant message (chainable).
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.AssistantMessage(text))
	return b
}

// Call appends an assistant message requesting one tool call (chainable).
func (b *ConversationBuilder) Call(name string, args map[string]any) *ConversationBuilder {
	b.next++
	id := fmt.Sprintf("call-%d", b.next)
	b.pending[name] = append(b.pending[name], id)
	b.msgs = append(b.msgs, core.AssistantMessage("", core.ToolCall{ID: id, Name: name, Arguments: args}))

	return b
}

// Result appends the tool result for the oldest open call of name (chainable).
func (b *ConversationBuilder) Result(name, content string) *ConversationBuilder {
	id := ""
	if ids := b.pending[name]; len(ids) > 0 {
		id, b.pending[name] = ids[0], ids[1:]
	}

	b.msgs = append(b.msgs, core.ToolResultMessage(name, id, content))

	return b
}

// Messages returns the built messages.
func (b *ConversationBuilder) Messages() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}

// Build returns a conversation holding the built messages.
func (b *ConversationBuilder) Build() *core.Conversation {
	return core.NewConversation(b.msgs...)
}

// Roles projects msgs onto their roles for compact assertions.
func Roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}

	return out
}

// RunContext returns a top-level run context named "main" for tests.
func RunContext(optFns ...func(o *core.RunContextOptions)) *core.RunContext {
	return core.NewRunContext(context.Background(), "run-1", core.AgentInfo{Name: "main", Type: "test"}, optFns...)
}

// ToolContext returns a tool context over RunContext(optFns...).
func ToolContext(optFns ...func(o *core.RunContextOptions)) *core.ToolContext {
	return core.NewToolContext(RunContext(optFns...), "call-1")
}
