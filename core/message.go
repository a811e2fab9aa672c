package core

import "github.com/google/uuid"

// Role identifies the author category of a Message.
type Role string

const (
	// RoleSystem marks the (synthesized) system prompt.
	RoleSystem Role = "system"
	// RoleHuman marks user input, including answers delivered through an interrupt.
	RoleHuman Role = "human"
	// RoleAssistant marks model output.
	RoleAssistant Role = "assistant"
	// RoleTool marks the result of a single tool call.
	RoleTool Role = "tool"
)

// ToolCall is a single tool invocation requested by the model. ID is unique
// within its generating assistant message.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one entry of a Conversation. Only assistant messages carry
// ToolCalls; only tool messages carry ToolName / ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage creates a system prompt message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// HumanMessage creates a human-turn message.
func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// AssistantMessage creates an assistant message with optional tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage creates the tool-result message answering call id.
func ToolResultMessage(name, callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolName: name, ToolCallID: callID}
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a deep copy so callers can never mutate a stored message.
func (m Message) Clone() Message {
	if len(m.ToolCalls) == 0 {
		return m
	}

	calls := make([]ToolCall, len(m.ToolCalls))
	for i, c := range m.ToolCalls {
		calls[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: cloneArgs(c.Arguments)}
	}

	m.ToolCalls = calls

	return m
}

// NormalizeToolCallIDs assigns fresh ids to calls whose id is empty or
// repeats an earlier id of the same message.
func NormalizeToolCallIDs(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(calls))
	out := make([]ToolCall, len(calls))

	for i, c := range calls {
		if _, dup := seen[c.ID]; c.ID == "" || dup {
			c.ID = NewID()
		}

		seen[c.ID] = struct{}{}
		out[i] = c
	}

	return out
}

// NewID returns a random identifier.
func NewID() string { return uuid.NewString() }

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	return out
}
