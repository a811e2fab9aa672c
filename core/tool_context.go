package core

import (
	"context"

	"github.com/hupe1980/agentree/logging"
)

// ToolContext is the constrained view a tool implementation gets of the
// calling agent's RunContext for a single tool call.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string

	*scopedLogger
}

// NewToolContext constructs a tool context bound to a parent RunContext
// and the id of the tool call being executed.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		scopedLogger:   runCtx.scopedLogger.with("call_id", functionCallID),
	}
}

// Context returns the cancellation context of the calling agent.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run the call belongs to.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// Logger returns the logger of the tool invocation. Its entries carry the
// run id, agent name and call id.
func (tc *ToolContext) Logger() logging.Logger { return tc.scopedLogger.Logger() }

// FunctionCallID returns the id of the tool call being executed.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the calling agent.
func (tc *ToolContext) AgentName() string { return tc.runCtx.Agent.Name }

// Depth returns the recursion depth of the calling agent.
func (tc *ToolContext) Depth() int { return tc.runCtx.Depth }

// Board returns the run-wide note board, or nil when the run has none.
func (tc *ToolContext) Board() NoteBoard { return tc.runCtx.Board }

// RunContext returns the calling agent's RunContext.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }
