package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/interrupt"
	"github.com/hupe1980/agentree/logging"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/prompt"
	"github.com/hupe1980/agentree/tool"
	"github.com/hupe1980/agentree/tool/builtin"
)

// State is a state of the reason/act loop.
type State string

const (
	// StateReflect calls the model and appends its assistant message.
	StateReflect State = "REFLECT"
	// StateAct executes the tool calls of the newest assistant message.
	StateAct State = "ACT"
	// StateEnd is terminal.
	StateEnd State = "END"
)

// ExitPolicy selects how the loop leaves ACT.
type ExitPolicy string

const (
	// ExitBaseline always returns to REFLECT after ACT; the loop ends only when
	// the model answers without tool calls.
	ExitBaseline ExitPolicy = "baseline"
	// ExitResponseGated ends after ACT when the latest tool result belongs to
	// the final-response tool.
	ExitResponseGated ExitPolicy = "response_gated"
)

// ErrUnknownExitPolicy is returned by ParseExitPolicy.
var ErrUnknownExitPolicy = errors.New("unknown exit policy")

// ParseExitPolicy parses a configured policy name. Empty means baseline.
func ParseExitPolicy(s string) (ExitPolicy, error) {
	switch ExitPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExitBaseline:
		return ExitBaseline, nil
	case ExitResponseGated, "response-gated":
		return ExitResponseGated, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExitPolicy, s)
	}
}

// ShouldUseTool decides the transition after REFLECT from the newest
// message alone: ACT iff it carries at least one tool call.
func ShouldUseTool(last core.Message) State {
	if last.HasToolCalls() {
		return StateAct
	}

	return StateEnd
}

// NextAfterAct decides the transition after ACT. Baseline always reflects
// again; response-gated ends iff the newest tool result came from finalTool.
func NextAfterAct(policy ExitPolicy, finalTool string, conv *core.Conversation) State {
	if policy != ExitResponseGated {
		return StateReflect
	}

	if last, ok := conv.LastToolResult(); ok && last.ToolName == finalTool {
		return StateEnd
	}

	return StateReflect
}

// Options configures an Agent.
type Options struct {
	// Instruction is the agent's own system prompt. A per-run
	// RunConfig.SystemPrompt takes precedence over it; without either the
	// prompt is synthesized from the registry's tool names.
	Instruction Instruction
	Prompts     *prompt.Set

	ExitPolicy    ExitPolicy
	FinalToolName string
	AskToolName   string

	Retry model.RetryPolicy
	// MaxModelCalls bounds the model calls of one Run (0 = use the
	// RunContext's limiter).
	MaxModelCalls int
	Stream        bool

	Logger logging.Logger
	// OnMessage observes every message the loop appends.
	OnMessage func(runCtx *core.RunContext, msg core.Message)
}

// Agent is one reason/act loop instance bound to a model and a fixed tool
// registry. An Agent holds no per-run state, so Run may be called once per
// conversation it owns.
type Agent struct {
	name       string
	llm        model.Model
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	opts       Options
}

// New creates an agent. The registry is fixed for the agent's lifetime.
func New(name string, llm model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Agent {
	opts := Options{
		ExitPolicy:    ExitBaseline,
		FinalToolName: builtin.ProvideAnswerName,
		AskToolName:   interrupt.ToolName,
		Retry:         model.DefaultRetryPolicy,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Prompts == nil {
		opts.Prompts = prompt.Default()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if registry == nil {
		registry = tool.NewRegistryFromTools()
	}

	return &Agent{
		name:       name,
		llm:        llm,
		registry:   registry,
		dispatcher: tool.NewDispatcher(registry),
		opts:       opts,
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Run drives conv from REFLECT to END and returns the final assistant
// message. Fatal errors (exhausted model retries, exceeded model budget,
// cancellation) abort the run; tool failures are fed back to the model.
func (a *Agent) Run(runCtx *core.RunContext, conv *core.Conversation) (core.Message, error) {
	logger := logging.With(a.opts.Logger, "agent", runCtx.RunID, a.name)

	limiter := runCtx.Limiter
	if a.opts.MaxModelCalls > 0 || limiter == nil {
		limiter = core.NewModelLimiter(a.opts.MaxModelCalls)
	}

	start := time.Now()
	state := StateReflect
	steps := 0

	logger.Info("agent.run.start", "depth", runCtx.Depth, "tools", a.registry.Names(), "policy", string(a.opts.ExitPolicy))

	for {
		if err := runCtx.Err(); err != nil {
			logger.Warn("agent.run.cancelled", "error", err.Error())
			return core.Message{}, err
		}

		switch state {
		case StateReflect:
			msg, err := a.reflect(runCtx, conv, limiter, logger)
			if err != nil {
				logger.Error("agent.run.failed", "state", string(state), "error", err.Error())
				return core.Message{}, err
			}

			state = ShouldUseTool(msg)
		case StateAct:
			steps++

			a.act(runCtx, conv, logger)
			state = NextAfterAct(a.opts.ExitPolicy, a.opts.FinalToolName, conv)
		case StateEnd:
			final := a.finalMessage(conv)

			logger.Info("agent.run.end",
				"steps", steps,
				"messages", conv.Len(),
				"duration_ms", time.Since(start).Milliseconds(),
			)

			return final, nil
		}
	}
}

func (a *Agent) reflect(
	runCtx *core.RunContext,
	conv *core.Conversation,
	limiter *core.ModelLimiter,
	logger logging.Logger,
) (core.Message, error) {
	system, err := a.systemPrompt(runCtx)
	if err != nil {
		return core.Message{}, fmt.Errorf("resolve system prompt: %w", err)
	}

	if err := limiter.Increment(); err != nil {
		return core.Message{}, err
	}

	req := model.Request{
		System:   system,
		Messages: conv.Messages(),
		Tools:    model.Definitions(a.registry.Tools()),
		Stream:   a.opts.Stream,
		Config:   runCtx.Config,
	}

	start := time.Now()

	msg, attempts, err := model.Invoke(runCtx.Context, a.llm, req, a.opts.Retry, logger)

	info := a.llm.Info()
	logging.LLMCall(logger, info.Provider+"/"+info.Name, attempts, time.Since(start), err)

	if err != nil {
		return core.Message{}, err
	}

	msg.Role = core.RoleAssistant
	msg.ToolCalls = core.NormalizeToolCallIDs(msg.ToolCalls)

	a.append(runCtx, conv, msg)

	logger.Debug("agent.reflect", "tool_calls", len(msg.ToolCalls))

	return msg, nil
}

// act runs the tool calls of the newest assistant message in emission order.
// Every call yields exactly one tool-result message. Once the run is
// cancelled the remaining calls are not invoked; each gets a cancelled
// error result instead.
func (a *Agent) act(runCtx *core.RunContext, conv *core.Conversation, logger logging.Logger) {
	last, ok := conv.Last()
	if !ok {
		return
	}

	for _, call := range last.ToolCalls {
		if runCtx.Err() != nil {
			skipped := tool.Result{Name: call.Name, Err: tool.NewToolError(call.Name, "cancelled", tool.CodeCancelled)}
			a.append(runCtx, conv, core.ToolResultMessage(call.Name, call.ID, skipped.Content()))
			logger.Debug("agent.act.skipped", "tool", call.Name, "call_id", call.ID)

			continue
		}

		toolCtx := core.NewToolContext(runCtx, call.ID)
		res := a.dispatcher.Invoke(toolCtx, call.Name, call.Arguments)

		a.append(runCtx, conv, core.ToolResultMessage(call.Name, call.ID, res.Content()))

		if !res.OK() {
			logger.Warn("agent.act.tool_error", "tool", call.Name, "code", res.Err.Code, "error", res.Err.Message)
			continue
		}

		if call.Name == a.opts.AskToolName {
			// the answer re-enters the conversation as ordinary user input
			a.append(runCtx, conv, core.HumanMessage(answerOf(res.Value)))
		}
	}
}

func (a *Agent) append(runCtx *core.RunContext, conv *core.Conversation, msg core.Message) {
	conv.Append(msg)

	if a.opts.OnMessage != nil {
		a.opts.OnMessage(runCtx, msg.Clone())
	}
}

// systemPrompt resolves the active prompt: per-run override, then the
// agent's instruction, then a prompt synthesized from the tool names.
func (a *Agent) systemPrompt(runCtx *core.RunContext) (string, error) {
	if p := runCtx.Config.SystemPrompt; p != "" {
		return p, nil
	}

	names := a.registry.Names()

	if !a.opts.Instruction.IsZero() {
		p, err := a.opts.Instruction.Resolve(runCtx, names)
		if err != nil {
			return "", err
		}

		if p != "" {
			return p, nil
		}
	}

	return a.opts.Prompts.System(names)
}

// finalMessage returns the newest assistant message. When the loop ended on
// the final-response tool and the message carries no text, the tool's
// answer argument becomes its content.
func (a *Agent) finalMessage(conv *core.Conversation) core.Message {
	msgs := conv.Messages()

	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Role != core.RoleAssistant {
			continue
		}

		if msg.Content == "" {
			for _, call := range msg.ToolCalls {
				if call.Name == a.opts.FinalToolName {
					if s, ok := call.Arguments["answer"].(string); ok {
						msg.Content = s
					}
				}
			}
		}

		return msg
	}

	return core.Message{Role: core.RoleAssistant}
}

func answerOf(v any) string {
	switch m := v.(type) {
	case map[string]any:
		if s, ok := m["answer"].(string); ok {
			return s
		}
	case map[string]string:
		return m["answer"]
	case string:
		return m
	}

	return fmt.Sprint(v)
}
