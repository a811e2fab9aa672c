package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/prompt"
	"github.com/hupe1980/agentree/tool"
	"github.com/hupe1980/agentree/tool/builtin"
)

// SpawnToolName is the name of the sub-agent factory tool.
const SpawnToolName = "create_agent"

// SpawnOptions configures the sub-agent factory tool.
type SpawnOptions struct {
	// Mandatory names are added to every child registry regardless of the
	// requested tools.
	Mandatory []string
	// Recursive binds the spawn tool itself into every child registry so
	// children can spawn grandchildren (bounded by the run's SpawnLimiter).
	Recursive bool
	Prompts   *prompt.Set
	// AgentOptions are applied to every child agent.
	AgentOptions []func(o *Options)
}

type spawnArgs struct {
	Name         string   `json:"name" jsonschema:"required,description=Short name of the new agent; its result is posted to the notes under this name"`
	SystemPrompt string   `json:"system_prompt" jsonschema:"required,description=System prompt describing the agent's role"`
	Tools        []string `json:"tools,omitempty" jsonschema:"description=Names of the tools the agent may use"`
	Task         string   `json:"task" jsonschema:"required,description=Task message for the agent"`
}

// NewSpawnTool returns the create_agent tool. Each call builds a child
// registry from catalog restricted to the requested names (with read_notes
// always included), runs a fresh baseline agent on the task synchronously,
// posts the child's final content to the run's board and returns
// {"agent": name, "response": content}.
//
// Spawning past the run's depth or concurrency bound fails with a
// RESOURCE_LIMIT tool error.
func NewSpawnTool(llm model.Model, catalog *tool.Catalog, optFns ...func(o *SpawnOptions)) *tool.FunctionTool {
	opts := SpawnOptions{
		Mandatory: []string{builtin.ReadNotesName},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Prompts == nil {
		opts.Prompts = prompt.Default()
	}

	var self *tool.FunctionTool

	self = tool.NewTypedTool(SpawnToolName,
		"Create a sub-agent with its own system prompt and tools, run it on a task and return its answer.",
		func(toolCtx *core.ToolContext, args spawnArgs) (any, error) {
			name := strings.TrimSpace(args.Name)
			if name == "" {
				return nil, tool.NewToolError(SpawnToolName, "agent name must not be empty", tool.CodeValidation)
			}

			parent := toolCtx.RunContext()

			release, err := parent.Spawns.Acquire(parent.Depth + 1)
			if err != nil {
				toolCtx.LogWarn("agent.spawn.rejected", "child", name, "depth", parent.Depth+1, "error", err.Error())
				return nil, err
			}
			defer release()

			childCtx, cancel := parent.NewChildContext(name)
			defer cancel()

			var extra []tool.Tool
			if _, ok := catalog.Get(builtin.ReadNotesName); !ok {
				extra = append(extra, builtin.NewReadNotes())
			}

			if opts.Recursive {
				extra = append(extra, self)
			}

			registry := tool.NewRegistry(catalog, func(o *tool.RegistryOptions) {
				o.Requested = args.Tools
				o.Mandatory = opts.Mandatory
				o.Extra = extra
			})

			agentOpts := append([]func(o *Options){}, opts.AgentOptions...)
			agentOpts = append(agentOpts, func(o *Options) {
				o.Instruction = NewLiteralInstruction(opts.Prompts.WithReminder(args.SystemPrompt))
				o.ExitPolicy = ExitBaseline
			})

			child := New(name, llm, registry, agentOpts...)

			toolCtx.LogInfo("agent.spawn.start",
				"child", name,
				"depth", childCtx.Depth,
				"tools", registry.Names(),
				"live", parent.Spawns.Live(),
			)

			start := time.Now()

			final, err := child.Run(childCtx, core.NewConversation(core.HumanMessage(args.Task)))
			if err != nil {
				return nil, fmt.Errorf("sub-agent %s: %w", name, err)
			}

			if board := parent.Board; board != nil {
				board.Post(name, final.Content)
			}

			toolCtx.LogInfo("agent.spawn.end", "child", name, "duration_ms", time.Since(start).Milliseconds())

			return map[string]any{"agent": name, "response": final.Content}, nil
		})

	return self
}
