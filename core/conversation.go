package core

import "sync"

// Conversation is the ordered, append-only message log owned by one agent.
// Reads return copies; nothing is ever removed or rewritten. The mutex only
// exists so a transport can stream new messages while the owning agent runs.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates a conversation seeded with msgs.
func NewConversation(msgs ...Message) *Conversation {
	c := &Conversation{}
	c.Append(msgs...)

	return c
}

// Append adds msgs at the end of the log.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range msgs {
		c.messages = append(c.messages, m.Clone())
	}
}

// Messages returns a snapshot of the whole log.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.sliceLocked(0)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.messages)
}

// Last returns the newest message.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return Message{}, false
	}

	return c.messages[len(c.messages)-1].Clone(), true
}

// LastToolResult returns the newest tool-result message.
func (c *Conversation) LastToolResult() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleTool {
			return c.messages[i].Clone(), true
		}
	}

	return Message{}, false
}

// Since returns the messages appended at or after index from together with
// the index to pass next time.
func (c *Conversation) Since(from int) ([]Message, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if from < 0 {
		from = 0
	}

	if from >= len(c.messages) {
		return nil, len(c.messages)
	}

	return c.sliceLocked(from), len(c.messages)
}

// Cursor returns a cursor positioned at the current end of the log.
func (c *Conversation) Cursor() *Cursor {
	return &Cursor{conv: c, next: c.Len()}
}

func (c *Conversation) sliceLocked(from int) []Message {
	out := make([]Message, 0, len(c.messages)-from)
	for _, m := range c.messages[from:] {
		out = append(out, m.Clone())
	}

	return out
}

// Cursor tracks the index of the first message not yet emitted.
type Cursor struct {
	conv *Conversation
	next int
}

// Next returns every message appended since the previous call.
func (cur *Cursor) Next() []Message {
	msgs, next := cur.conv.Since(cur.next)
	cur.next = next

	return msgs
}

// Position returns the index of the next unseen message.
func (cur *Cursor) Position() int { return cur.next }
