// Package orchestrator plans a task into steps and runs one fresh agent per
// step, strictly one after another, all sharing the run's blackboard.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentree/agent"
	"github.com/hupe1980/agentree/blackboard"
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/prompt"
	"github.com/hupe1980/agentree/tool"
)

// Board is the run-wide note log. It is reset at the start of every run.
type Board interface {
	core.NoteBoard
	Reset() error
}

// Options configures an Orchestrator.
type Options struct {
	Board         Board
	Prompts       *prompt.Set
	Spawns        core.SpawnLimits
	MaxModelCalls int
	Logger        logging.Logger
	// AgentOptions are applied to every step agent.
	AgentOptions []func(o *agent.Options)
}

// RunOptions carries per-run inputs.
type RunOptions struct {
	// SystemPrompt replaces the synthesized base prompt of every step.
	SystemPrompt string
	// Requested restricts the catalog to these tool names when non-empty.
	Requested []string
	// Extra tools are bound to every step agent, e.g. the session's ask tool.
	Extra []tool.Tool
	// OnStep is called before each step starts.
	OnStep func(index int, step string)
	// OnStepDone is called after each step with its messages, including a
	// failed step's partial sequence.
	OnStepDone func(index int, step string, msgs []core.Message, err error)
}

// Orchestrator sequences one fresh baseline agent per planned step.
type Orchestrator struct {
	llm  model.Model
	opts Options
}

// New creates an orchestrator.
func New(llm model.Model, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Spawns: core.DefaultSpawnLimits}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Board == nil {
		opts.Board = blackboard.New()
	}

	if opts.Prompts == nil {
		opts.Prompts = prompt.Default()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Orchestrator{llm: llm, opts: opts}
}

// Board returns the shared note board.
func (o *Orchestrator) Board() Board { return o.opts.Board }

// Plan splits task on '.' into trimmed, non-empty steps. A task that yields
// no step is planned as a single step holding the raw task.
func Plan(task string) []string {
	var steps []string

	for _, s := range strings.Split(task, ".") {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}

	if len(steps) == 0 {
		return []string{task}
	}

	return steps
}

// Run plans task and runs the steps in order. Each step gets a fresh
// conversation seeded with the step text, a fresh agent with every catalog
// tool and an instruction built from the base prompt plus the step. The
// result holds each step's full message sequence. A failing step aborts the
// run; the sequences of the completed steps are returned with the error.
func (o *Orchestrator) Run(ctx context.Context, task string, catalog *tool.Catalog, optFns ...func(o *RunOptions)) ([][]core.Message, error) {
	runOpts := RunOptions{}
	for _, fn := range optFns {
		fn(&runOpts)
	}

	if err := o.opts.Board.Reset(); err != nil {
		return nil, fmt.Errorf("reset board: %w", err)
	}

	runID := uuid.NewString()
	logger := logging.With(o.opts.Logger, "orchestrator", runID, "")
	spawns := core.NewSpawnLimiter(o.opts.Spawns)

	registry := tool.NewRegistry(catalog, func(ro *tool.RegistryOptions) {
		ro.All = len(runOpts.Requested) == 0
		ro.Requested = runOpts.Requested
		ro.Extra = runOpts.Extra
	})

	steps := Plan(task)
	results := make([][]core.Message, 0, len(steps))

	logger.Info("orchestrator.run.start", "steps", len(steps), "tools", registry.Names())

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if runOpts.OnStep != nil {
			runOpts.OnStep(i, step)
		}

		start := time.Now()

		msgs, err := o.runStep(ctx, runID, i, step, registry, spawns, runOpts)
		logging.Step(logger, i, step, len(msgs), time.Since(start), err)

		if runOpts.OnStepDone != nil {
			runOpts.OnStepDone(i, step, msgs, err)
		}

		if err != nil {
			return results, fmt.Errorf("step %d %q: %w", i+1, step, err)
		}

		results = append(results, msgs)
	}

	return results, nil
}

func (o *Orchestrator) runStep(
	ctx context.Context,
	runID string,
	index int,
	step string,
	registry *tool.Registry,
	spawns *core.SpawnLimiter,
	runOpts RunOptions,
) ([]core.Message, error) {
	var (
		instruction string
		err         error
	)

	if runOpts.SystemPrompt != "" {
		instruction, err = o.opts.Prompts.WithStep(runOpts.SystemPrompt, step)
	} else {
		instruction, err = o.opts.Prompts.ForStep(step, registry.Names())
	}

	if err != nil {
		return nil, fmt.Errorf("build step prompt: %w", err)
	}

	name := fmt.Sprintf("step-%d", index+1)

	agentOpts := append([]func(o *agent.Options){}, o.opts.AgentOptions...)
	agentOpts = append(agentOpts, func(ao *agent.Options) {
		ao.Instruction = agent.NewLiteralInstruction(instruction)
		ao.ExitPolicy = agent.ExitBaseline
		ao.Prompts = o.opts.Prompts

		if ao.Logger == nil {
			ao.Logger = o.opts.Logger
		}
	})

	a := agent.New(name, o.llm, registry, agentOpts...)

	runCtx := core.NewRunContext(ctx, runID, core.AgentInfo{Name: name, Type: "step"}, func(ro *core.RunContextOptions) {
		ro.Board = o.opts.Board
		ro.Spawns = spawns
		ro.MaxModelCalls = o.opts.MaxModelCalls
		ro.Logger = o.opts.Logger
	})

	conv := core.NewConversation(core.HumanMessage(step))

	_, err = a.Run(runCtx, conv)

	return conv.Messages(), err
}
