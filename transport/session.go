package transport

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentree/interrupt"
	"github.com/hupe1980/agentree/logging"
	"github.com/hupe1980/agentree/tool"
)

// Input is one inbound message.
type Input struct {
	Text         string   `json:"text"`
	Tools        []string `json:"tools,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// Line kinds.
const (
	KindMessage    = "message"
	KindToolCall   = "tool_call"
	KindToolResult = "tool_result"
	KindQuestion   = "question"
	KindStep       = "step"
	KindError      = "error"
	KindDone       = "done"
)

// Line is one outbound unit of the session's text stream.
type Line struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	Name string `json:"name,omitempty"` // tool or agent name
}

// Route tells how Handle dispatched an input.
type Route int

const (
	// RouteTurn started a new top-level turn.
	RouteTurn Route = iota
	// RouteAnswer delivered the input to the turn awaiting an answer.
	RouteAnswer
	// RouteBusy rejected the input because a turn is running.
	RouteBusy
	// RouteClosed rejected the input because the session is closed.
	RouteClosed
)

func (r Route) String() string {
	switch r {
	case RouteTurn:
		return "turn"
	case RouteAnswer:
		return "answer"
	case RouteBusy:
		return "busy"
	case RouteClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Env is what a turn gets from its session.
type Env struct {
	// Ask is the session's ask-the-user tool. Bind it into the turn's registry.
	Ask tool.Tool
	// Emit appends a line to the outbound stream.
	Emit func(Line)
}

// Turn runs one top-level turn for an input.
type Turn interface {
	Run(ctx context.Context, in Input, env Env) error
}

// TurnFunc adapts a function to Turn.
type TurnFunc func(ctx context.Context, in Input, env Env) error

// Run implements Turn.
func (f TurnFunc) Run(ctx context.Context, in Input, env Env) error { return f(ctx, in, env) }

// SessionOptions configures a Session.
type SessionOptions struct {
	InterruptTimeout time.Duration
	AskToolName      string
	Buffer           int
	Logger           logging.Logger
}

// Session routes inbound input for one client. At most one turn runs at a
// time; Handle never blocks on the turn.
type Session struct {
	turn   Turn
	ch     *interrupt.Channel
	ask    tool.Tool
	lines  chan Line
	done   chan struct{}
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	emitMu sync.RWMutex

	mu     sync.Mutex
	busy   bool
	closed bool
	wg     sync.WaitGroup
	idle   *sync.Cond
}

// NewSession creates a session running turn for every new top-level input.
func NewSession(turn Turn, optFns ...func(o *SessionOptions)) *Session {
	opts := SessionOptions{
		InterruptTimeout: interrupt.DefaultTimeout,
		AskToolName:      interrupt.ToolName,
		Buffer:           64,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		turn:   turn,
		lines:  make(chan Line, opts.Buffer),
		done:   make(chan struct{}),
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.idle = sync.NewCond(&s.mu)

	s.ch = interrupt.New(func(o *interrupt.Options) {
		o.Timeout = opts.InterruptTimeout
		o.Logger = opts.Logger
		o.Publish = func(question string) {
			s.Emit(Line{Kind: KindQuestion, Text: question})
		}
	})
	s.ask = interrupt.NewNamedTool(opts.AskToolName, s.ch)

	return s
}

// Handle routes in: to the waiting turn when one awaits an answer, else to
// a new turn when idle, else it is rejected as busy.
func (s *Session) Handle(in Input) Route {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return RouteClosed
	}

	if s.ch.Waiting() && s.ch.Deliver(in.Text) {
		s.logger.Debug("transport.route", "route", RouteAnswer.String())
		return RouteAnswer
	}

	if s.busy {
		s.logger.Debug("transport.route", "route", RouteBusy.String())
		return RouteBusy
	}

	s.busy = true
	s.wg.Add(1)

	go s.runTurn(in)

	s.logger.Debug("transport.route", "route", RouteTurn.String())

	return RouteTurn
}

func (s *Session) runTurn(in Input) {
	defer s.wg.Done()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.idle.Broadcast()
		s.mu.Unlock()
	}()

	err := s.turn.Run(s.ctx, in, Env{Ask: s.ask, Emit: s.Emit})
	if err != nil {
		s.logger.Warn("transport.turn.failed", "error", err.Error())
		s.Emit(Line{Kind: KindError, Text: err.Error()})
	}

	s.Emit(Line{Kind: KindDone})
}

// Emit appends a line to the outbound stream. It blocks while the stream is
// full and drops the line once the session is closed.
func (s *Session) Emit(line Line) {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()

	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.lines <- line:
	case <-s.done:
	}
}

// TryEmit is Emit without blocking: it reports false when the stream is
// full or the session is closed.
func (s *Session) TryEmit(line Line) bool {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()

	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.lines <- line:
		return true
	default:
		return false
	}
}

// Lines returns the outbound stream. It is closed by Close.
func (s *Session) Lines() <-chan Line { return s.lines }

// Waiting reports whether a turn awaits an answer.
func (s *Session) Waiting() bool { return s.ch.Waiting() }

// Busy reports whether a turn is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy
}

// Wait blocks until no turn is running or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.idle.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.busy {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.idle.Wait()
	}

	return nil
}

// Close cancels the running turn (and its whole agent tree), waits for it
// to return and closes the outbound stream.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	s.wg.Wait()

	// blocked emitters have left through done; no new sends can start
	s.emitMu.Lock()
	close(s.lines)
	s.emitMu.Unlock()
}
