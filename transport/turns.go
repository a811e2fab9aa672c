package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentree/agent"
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/orchestrator"
	"github.com/hupe1980/agentree/tool"
)

// MessageLines renders a conversation message as outbound lines. Human
// messages are not echoed.
func MessageLines(msg core.Message) []Line {
	var lines []Line

	switch msg.Role {
	case core.RoleAssistant:
		if msg.Content != "" {
			lines = append(lines, Line{Kind: KindMessage, Text: msg.Content})
		}

		for _, call := range msg.ToolCalls {
			args, _ := json.Marshal(call.Arguments)
			lines = append(lines, Line{Kind: KindToolCall, Name: call.Name, Text: string(args)})
		}
	case core.RoleTool:
		lines = append(lines, Line{Kind: KindToolResult, Name: msg.ToolName, Text: msg.Content})
	}

	return lines
}

// ChatOptions configures a ChatTurn.
type ChatOptions struct {
	Name          string
	Board         core.NoteBoard
	Spawns        core.SpawnLimits
	MaxModelCalls int
	Logger        logging.Logger
	AgentOptions  []func(o *agent.Options)
}

// ChatTurn keeps one conversation across turns. Each turn appends the
// input as a human message, runs an agent over the whole conversation and
// streams every message appended since the previous emission.
type ChatTurn struct {
	llm     model.Model
	catalog *tool.Catalog
	opts    ChatOptions
	runID   string

	mu     sync.Mutex
	conv   *core.Conversation
	cursor *core.Cursor
}

// NewChatTurn creates a chat turn over catalog.
func NewChatTurn(llm model.Model, catalog *tool.Catalog, optFns ...func(o *ChatOptions)) *ChatTurn {
	opts := ChatOptions{Name: "assistant", Spawns: core.DefaultSpawnLimits}
	for _, fn := range optFns {
		fn(&opts)
	}

	conv := core.NewConversation()

	return &ChatTurn{
		llm:     llm,
		catalog: catalog,
		opts:    opts,
		runID:   uuid.NewString(),
		conv:    conv,
		cursor:  conv.Cursor(),
	}
}

// Conversation returns the persistent conversation.
func (c *ChatTurn) Conversation() *core.Conversation { return c.conv }

// Run implements Turn.
func (c *ChatTurn) Run(ctx context.Context, in Input, env Env) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	registry := tool.NewRegistry(c.catalog, func(o *tool.RegistryOptions) {
		o.All = len(in.Tools) == 0
		o.Requested = in.Tools
		o.Extra = []tool.Tool{env.Ask}
	})

	emitNew := func() {
		for _, msg := range c.cursor.Next() {
			for _, line := range MessageLines(msg) {
				env.Emit(line)
			}
		}
	}

	agentOpts := append([]func(o *agent.Options){}, c.opts.AgentOptions...)
	agentOpts = append(agentOpts, func(o *agent.Options) {
		o.OnMessage = func(*core.RunContext, core.Message) { emitNew() }

		if o.Logger == nil {
			o.Logger = c.opts.Logger
		}
	})

	a := agent.New(c.opts.Name, c.llm, registry, agentOpts...)

	runCtx := core.NewRunContext(ctx, c.runID, core.AgentInfo{Name: c.opts.Name, Type: "chat"}, func(o *core.RunContextOptions) {
		o.Config.SystemPrompt = in.SystemPrompt
		o.Board = c.opts.Board
		o.Spawns = core.NewSpawnLimiter(c.opts.Spawns)
		o.MaxModelCalls = c.opts.MaxModelCalls
		o.Logger = c.opts.Logger
	})

	c.conv.Append(core.HumanMessage(in.Text))
	c.cursor.Next() // the input itself is not echoed

	_, err := a.Run(runCtx, c.conv)
	emitNew()

	return err
}

// OrchestratorTurn runs one orchestrated task per input and streams each
// step's messages as the step completes.
type OrchestratorTurn struct {
	orch    *orchestrator.Orchestrator
	catalog *tool.Catalog
}

// NewOrchestratorTurn creates a turn running orch over catalog.
func NewOrchestratorTurn(orch *orchestrator.Orchestrator, catalog *tool.Catalog) *OrchestratorTurn {
	return &OrchestratorTurn{orch: orch, catalog: catalog}
}

// Run implements Turn.
func (t *OrchestratorTurn) Run(ctx context.Context, in Input, env Env) error {
	_, err := t.orch.Run(ctx, in.Text, t.catalog, func(o *orchestrator.RunOptions) {
		o.SystemPrompt = in.SystemPrompt
		o.Requested = in.Tools
		o.Extra = []tool.Tool{env.Ask}
		o.OnStep = func(_ int, step string) {
			env.Emit(Line{Kind: KindStep, Text: step})
		}
		o.OnStepDone = func(_ int, _ string, msgs []core.Message, _ error) {
			for _, msg := range msgs {
				for _, line := range MessageLines(msg) {
					env.Emit(line)
				}
			}
		}
	})

	return err
}
