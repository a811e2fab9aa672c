// Package agentree assembles a runnable agent system from a config.Config:
// the model backend, the shared blackboard, the tool catalogs (secondary
// tools for sub-agents, plus create_agent for top-level agents), the
// orchestrator and the transport turns.
//
// Most applications:
//  1. Load a config via config.Load
//  2. Build an App via New (optionally overriding the model or logger)
//  3. Call Run for a one-shot orchestrated task, or NewSession / Server for
//     interactive use
package agentree

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/hupe1980/agentree/agent"
	"github.com/hupe1980/agentree/blackboard"
	"github.com/hupe1980/agentree/config"
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/model/anthropic"
	"github.com/hupe1980/agentree/model/openai"
	"github.com/hupe1980/agentree/orchestrator"
	"github.com/hupe1980/agentree/prompt"
	"github.com/hupe1980/agentree/tool"
	"github.com/hupe1980/agentree/tool/builtin"
	"github.com/hupe1980/agentree/transport"
)

// Session modes.
const (
	ModeChat        = "chat"
	ModeOrchestrate = "orchestrate"
)

// Options overrides parts of the assembled system.
type Options struct {
	// Model replaces the backend configured in Config.Model.
	Model model.Model
	// Logger replaces the logger built from Config.Logging.
	Logger logging.Logger
	// LogOutput is where the built logger writes (default stderr).
	LogOutput io.Writer
	// Builtin customizes the built-in tools (clock, mailer, HTTP client).
	Builtin []func(o *builtin.Options)
}

// App is the assembled system.
type App struct {
	cfg       *config.Config
	logger    logging.Logger
	llm       model.Model
	prompts   *prompt.Set
	board     *blackboard.Blackboard
	secondary *tool.Catalog
	primary   *tool.Catalog
	orch      *orchestrator.Orchestrator
}

// New builds an App from cfg.
func New(cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg == nil {
		cfg = config.Default()
	}

	logger := opts.Logger
	if logger == nil {
		lc := cfg.LoggerConfig()
		if opts.LogOutput != nil {
			lc.Output = opts.LogOutput
		}

		logger = logging.NewLogger(lc)
	}

	llm := opts.Model
	if llm == nil {
		var err error
		if llm, err = NewModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	prompts, err := prompt.Load(cfg.Prompts.Path)
	if err != nil {
		return nil, err
	}

	policy, err := agent.ParseExitPolicy(cfg.Agent.ExitPolicy)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		llm:     llm,
		prompts: prompts,
	}
	a.board = a.newBoard()

	builtins := builtin.Tools(opts.Builtin...)

	secondary, err := selectTools(builtins, cfg.Tools.Secondary)
	if err != nil {
		return nil, fmt.Errorf("tools.secondary: %w", err)
	}

	if a.secondary, err = tool.NewCatalog(secondary...); err != nil {
		return nil, err
	}

	spawn := agent.NewSpawnTool(llm, a.secondary, func(o *agent.SpawnOptions) {
		o.Recursive = cfg.Tools.Recursive
		o.Prompts = prompts
		o.AgentOptions = []func(o *agent.Options){a.agentOptions(agent.ExitBaseline)}
	})

	primary, err := selectTools(append([]tool.Tool{spawn}, builtins...), cfg.Tools.Orchestrator)
	if err != nil {
		return nil, fmt.Errorf("tools.orchestrator: %w", err)
	}

	if a.primary, err = tool.NewCatalog(primary...); err != nil {
		return nil, err
	}

	a.orch = orchestrator.New(llm, func(o *orchestrator.Options) {
		o.Board = a.board
		o.Prompts = prompts
		o.Spawns = cfg.Limits
		o.MaxModelCalls = cfg.Agent.MaxModelCalls
		o.Logger = logger
		o.AgentOptions = []func(o *agent.Options){a.agentOptions(agent.ExitBaseline)}
	})

	logger.Info("agentree.ready",
		"provider", llm.Info().Provider,
		"model", llm.Info().Name,
		"policy", string(policy),
		"tools", a.primary.Names(),
	)

	return a, nil
}

// NewModel builds the model backend described by cfg.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		var reqOpts []openaiopt.RequestOption
		if cfg.APIKey != "" {
			reqOpts = append(reqOpts, openaiopt.WithAPIKey(cfg.APIKey))
		}

		if cfg.BaseURL != "" {
			reqOpts = append(reqOpts, openaiopt.WithBaseURL(cfg.BaseURL))
		}

		client := openaisdk.NewClient(reqOpts...)

		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	case config.ProviderAnthropic:
		var reqOpts []anthropicopt.RequestOption
		if cfg.APIKey != "" {
			reqOpts = append(reqOpts, anthropicopt.WithAPIKey(cfg.APIKey))
		}

		if cfg.BaseURL != "" {
			reqOpts = append(reqOpts, anthropicopt.WithBaseURL(cfg.BaseURL))
		}

		client := anthropicsdk.NewClient(reqOpts...)

		return anthropic.NewModelFromClient(&client, func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Name)
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// selectTools keeps the tools named in names, in names order. No names
// selects every tool.
func selectTools(tools []tool.Tool, names []string) ([]tool.Tool, error) {
	if len(names) == 0 {
		return tools, nil
	}

	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	out := make([]tool.Tool, 0, len(names))

	for _, n := range names {
		t, ok := byName[strings.TrimSpace(n)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrToolNotFound, n)
		}

		out = append(out, t)
	}

	return out, nil
}

// newBoard creates an empty blackboard mirrored to the configured file.
func (a *App) newBoard() *blackboard.Blackboard {
	return blackboard.New(func(o *blackboard.Options) {
		o.Logger = a.logger
		if a.cfg.Blackboard.MirrorPath != "" {
			o.Mirror = blackboard.NewFileMirror(a.cfg.Blackboard.MirrorPath)
		}
	})
}

func (a *App) agentOptions(policy agent.ExitPolicy) func(o *agent.Options) {
	return func(o *agent.Options) {
		o.Prompts = a.prompts
		o.ExitPolicy = policy
		o.FinalToolName = a.cfg.Agent.FinalTool
		o.AskToolName = a.cfg.Agent.AskTool
		o.Retry = a.cfg.Retry
		o.Stream = a.cfg.Model.Stream
		o.Logger = a.logger
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the App's logger.
func (a *App) Logger() logging.Logger { return a.logger }

// Board returns the blackboard of orchestrated runs. Chat sessions each own
// a separate board.
func (a *App) Board() *blackboard.Blackboard { return a.board }

// Catalog returns the top-level tool catalog (create_agent included).
func (a *App) Catalog() *tool.Catalog { return a.primary }

// SecondaryCatalog returns the tools sub-agents may be granted.
func (a *App) SecondaryCatalog() *tool.Catalog { return a.secondary }

// Orchestrator returns the orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Run plans task and runs it to completion without a user in the loop.
func (a *App) Run(ctx context.Context, task string, optFns ...func(o *orchestrator.RunOptions)) ([][]core.Message, error) {
	return a.orch.Run(ctx, task, a.primary, optFns...)
}

// NewTurn creates a fresh turn for mode. A chat turn starts a new run: it
// gets its own board, and the mirror file is truncated.
func (a *App) NewTurn(mode string) (transport.Turn, error) {
	switch mode {
	case ModeChat, "":
		policy, err := agent.ParseExitPolicy(a.cfg.Agent.ExitPolicy)
		if err != nil {
			return nil, err
		}

		board := a.newBoard()
		if err := board.Reset(); err != nil {
			return nil, fmt.Errorf("reset blackboard: %w", err)
		}

		return transport.NewChatTurn(a.llm, a.primary, func(o *transport.ChatOptions) {
			o.Board = board
			o.Spawns = a.cfg.Limits
			o.MaxModelCalls = a.cfg.Agent.MaxModelCalls
			o.Logger = a.logger
			o.AgentOptions = []func(o *agent.Options){a.agentOptions(policy)}
		}), nil
	case ModeOrchestrate:
		return transport.NewOrchestratorTurn(a.orch, a.primary), nil
	default:
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}
}

// NewSession creates a session running turns of mode.
func (a *App) NewSession(mode string) (*transport.Session, error) {
	turn, err := a.NewTurn(mode)
	if err != nil {
		return nil, err
	}

	return transport.NewSession(turn, a.sessionOptions), nil
}

func (a *App) sessionOptions(o *transport.SessionOptions) {
	o.InterruptTimeout = a.cfg.Interrupt.Timeout
	o.AskToolName = a.cfg.Agent.AskTool
	o.Logger = a.logger
}

// Server creates a WebSocket server giving every connection its own
// session of mode. GET /notes serves the orchestrator's board; chat
// connections keep their notes private.
func (a *App) Server(mode string) (*transport.Server, error) {
	switch mode {
	case ModeChat, "", ModeOrchestrate:
	default:
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}

	return transport.NewServer(func() (transport.Turn, error) {
		return a.NewTurn(mode)
	}, func(o *transport.ServerOptions) {
		if mode == ModeOrchestrate {
			o.Board = a.board
		}
		o.InterruptTimeout = a.cfg.Interrupt.Timeout
		o.AskToolName = a.cfg.Agent.AskTool
		o.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
		o.Logger = a.logger
	}), nil
}

// Serve runs the WebSocket server on the configured address until ctx is
// cancelled.
func (a *App) Serve(ctx context.Context, mode string) error {
	srv, err := a.Server(mode)
	if err != nil {
		return err
	}

	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Handler returns the server's HTTP handler, for embedding.
func (a *App) Handler(mode string) (http.Handler, error) {
	srv, err := a.Server(mode)
	if err != nil {
		return nil, err
	}

	return srv.Handler(), nil
}
