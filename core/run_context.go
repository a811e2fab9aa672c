package core

import (
	"context"

	"github.com/hupe1980/agentree/logging"
)

// AgentInfo carries identifying details about an agent used in contexts & logs.
// Name is the declared agent name; Type categorizes it ("step", "sub", "chat").
type AgentInfo struct{ Name, Type string }

// RunConfig holds per-run settings forwarded to the model boundary.
type RunConfig struct {
	// SystemPrompt overrides every other system prompt source when non-empty.
	SystemPrompt string
}

// RunContext carries the execution scope of one agent instance:
//   - the ambient cancellation Context (cancelling it aborts the whole subtree)
//   - identifiers (RunID, Agent) and the recursion Depth
//   - the run-wide NoteBoard and SpawnLimiter shared by reference
//   - a per-agent ModelLimiter
//
// A RunContext is owned by exactly one agent; children get their own via
// NewChildContext.
type RunContext struct {
	Context context.Context
	RunID   string
	Agent   AgentInfo
	Depth   int
	Config  RunConfig
	Board   NoteBoard
	Spawns  *SpawnLimiter
	Limiter *ModelLimiter

	*scopedLogger
}

// RunContextOptions configures NewRunContext.
type RunContextOptions struct {
	Config        RunConfig
	Board         NoteBoard
	Spawns        *SpawnLimiter
	MaxModelCalls int
	Logger        logging.Logger
}

// NewRunContext constructs a top-level (depth 0) RunContext.
func NewRunContext(ctx context.Context, runID string, agent AgentInfo, optFns ...func(o *RunContextOptions)) *RunContext {
	opts := RunContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Spawns == nil {
		opts.Spawns = NewSpawnLimiter(DefaultSpawnLimits)
	}

	return &RunContext{
		Context:      ctx,
		RunID:        runID,
		Agent:        agent,
		Config:       opts.Config,
		Board:        opts.Board,
		Spawns:       opts.Spawns,
		Limiter:      NewModelLimiter(opts.MaxModelCalls),
		scopedLogger: newScopedLogger(opts.Logger, runID, agent.Name),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// NewChildContext derives the context of a sub-agent one level deeper. The
// child shares board and spawn limiter, inherits the model call budget size
// and drops the per-run prompt override. Calling cancel aborts the child and
// everything it spawns.
func (rc *RunContext) NewChildContext(name string) (*RunContext, context.CancelFunc) {
	ctx, cancel := context.WithCancel(rc.Context)

	max := 0
	if rc.Limiter != nil {
		max = rc.Limiter.max
	}

	return &RunContext{
		Context:      ctx,
		RunID:        rc.RunID,
		Agent:        AgentInfo{Name: name, Type: "sub"},
		Depth:        rc.Depth + 1,
		Board:        rc.Board,
		Spawns:       rc.Spawns,
		Limiter:      NewModelLimiter(max),
		scopedLogger: newScopedLogger(rc.base, rc.RunID, name),
	}, cancel
}

// GetAgentName returns the logical agent name for this run.
func (rc *RunContext) GetAgentName() string { return rc.Agent.Name }

// scopedLogger provides the Log* helpers of run and tool contexts. Entries
// carry the run id and agent name of the scope when the underlying logger is
// a *logging.StructuredLogger; other loggers are used as they are.
type scopedLogger struct {
	base   logging.Logger
	logger logging.Logger
}

func newScopedLogger(base logging.Logger, runID, agent string) *scopedLogger {
	if base == nil {
		base = logging.NoOpLogger{}
	}

	return &scopedLogger{base: base, logger: logging.With(base, "", runID, agent)}
}

// with returns a copy whose entries also carry key=value.
func (l *scopedLogger) with(key string, value any) *scopedLogger {
	if sl, ok := l.logger.(*logging.StructuredLogger); ok {
		return &scopedLogger{base: l.base, logger: sl.WithContext(key, value)}
	}

	return l
}

// Logger returns the scoped logger.
func (l *scopedLogger) Logger() logging.Logger { return l.logger }

// LogDebug logs a debug message.
func (l *scopedLogger) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// LogInfo logs an info message.
func (l *scopedLogger) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

// LogWarn logs a warning message.
func (l *scopedLogger) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// LogError logs an error message.
func (l *scopedLogger) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
