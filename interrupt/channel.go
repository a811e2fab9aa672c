// Package interrupt implements the human-in-the-loop suspend/resume hand-off
// between an agent blocked inside a tool call and the transport loop that
// owns user input.
//
// The transport owns the producer end (Deliver) and must never block on it;
// the agent owns the consumer end (Ask). Waiting is the shared, synchronized
// flag the transport uses to decide whether incoming text is an answer or a
// new top-level turn.
package interrupt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
)

// PublishFunc carries a question across the transport boundary. It must not block.
type PublishFunc func(question string)

// Options configures a Channel.
type Options struct {
	// Timeout bounds how long Ask waits. Zero means wait until the context ends.
	Timeout time.Duration
	// Publish announces questions to the user.
	Publish PublishFunc
	Logger  logging.Logger
}

// DefaultTimeout is applied by New when Options.Timeout is left at its default.
const DefaultTimeout = 5 * time.Minute

// Channel is a one-question-at-a-time suspend/resume channel.
type Channel struct {
	mu       sync.Mutex
	waiting  bool
	question string
	slot     chan string

	timeout time.Duration
	publish PublishFunc
	logger  logging.Logger
}

// New creates a Channel.
func New(optFns ...func(o *Options)) *Channel {
	opts := Options{
		Timeout: DefaultTimeout,
		Publish: func(string) {},
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Channel{
		timeout: opts.Timeout,
		publish: opts.Publish,
		logger:  opts.Logger,
	}
}

// Ask publishes question, marks the channel waiting and blocks until an
// answer is delivered, the timeout elapses or ctx ends.
func (c *Channel) Ask(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	if c.waiting {
		c.mu.Unlock()
		return "", core.ErrAlreadyWaiting
	}

	slot := make(chan string, 1)
	c.slot = slot
	c.question = question
	c.waiting = true
	c.mu.Unlock()

	c.logger.Info("interrupt.ask", "question", question)
	c.publish(question)

	var timeout <-chan time.Time

	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case answer := <-slot:
		c.logger.Info("interrupt.answered")
		return answer, nil
	case <-timeout:
		if answer, ok := c.abandon(slot); ok {
			return answer, nil
		}

		c.logger.Warn("interrupt.timeout", "timeout", c.timeout)

		return "", fmt.Errorf("%w after %s", core.ErrInterruptTimeout, c.timeout)
	case <-ctx.Done():
		if answer, ok := c.abandon(slot); ok {
			return answer, nil
		}

		c.logger.Warn("interrupt.cancelled", "error", ctx.Err())

		return "", ctx.Err()
	}
}

// Deliver hands answer to the pending Ask. It never blocks and releases at
// most one waiter: it reports false when nothing is waiting, including when
// an earlier Deliver already answered the current question.
func (c *Channel) Deliver(answer string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.waiting || c.slot == nil {
		return false
	}

	c.slot <- answer // buffered(1) and written once per question
	c.slot = nil
	c.waiting = false
	c.question = ""

	return true
}

// Waiting reports whether a question is pending.
func (c *Channel) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.waiting
}

// Pending returns the pending question, if any.
func (c *Channel) Pending() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.question, c.waiting
}

// abandon withdraws the question of slot. If Deliver won the race the
// answer is already buffered and is returned instead.
func (c *Channel) abandon(slot chan string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slot == slot {
		c.slot = nil
		c.waiting = false
		c.question = ""

		return "", false
	}

	select {
	case answer := <-slot:
		return answer, true
	default:
		return "", false
	}
}
