// Command agentree runs agent trees from the terminal or over WebSocket.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentree"
	"github.com/hupe1980/agentree/config"
	"github.com/hupe1980/agentree/transport"
)

var (
	configPath   string
	systemPrompt string
	tools        []string
	serveMode    string
	serveAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "agentree",
	Short: "Run trees of tool-using LLM agents",
	Long: `agentree plans a task into steps and runs one agent per step. Agents
call tools, spawn sub-agents that share a note board, and may ask you
follow-up questions while they work.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run one orchestrated task",
	Long: `Plan the task into steps and run them in order. Follow-up questions
are answered on stdin; the command exits once the task is done.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, agentree.ModeOrchestrate, strings.Join(args, " "))
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a single agent that keeps the conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSession(cmd, agentree.ModeChat, "")
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions over WebSocket",
	Long: `Serve GET /ws (one session per connection), GET /notes (the note
board) and GET /healthz.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}

		return app.Serve(cmd.Context(), serveMode)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")

	for _, c := range []*cobra.Command{runCmd, chatCmd} {
		c.Flags().StringVar(&systemPrompt, "system-prompt", "", "Replace the synthesized system prompt")
		c.Flags().StringSliceVar(&tools, "tools", nil, "Restrict the agents to these tools")
	}

	serveCmd.Flags().StringVar(&serveMode, "mode", agentree.ModeChat, "Session mode: chat or orchestrate")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")

	rootCmd.AddCommand(runCmd, chatCmd, serveCmd)
}

func newApp(cmd *cobra.Command) (*agentree.App, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	return agentree.New(cfg, func(o *agentree.Options) {
		o.LogOutput = cmd.ErrOrStderr()
	})
}

func runSession(cmd *cobra.Command, mode, first string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	session, err := app.NewSession(mode)
	if err != nil {
		return err
	}

	stdin := cmd.InOrStdin()

	if first != "" {
		// the task is the first input; later lines answer questions
		stdin = io.MultiReader(strings.NewReader(first+"\n"), stdin)
	}

	return transport.RunConsole(cmd.Context(), stdin, cmd.OutOrStdout(), session, func(o *transport.ConsoleOptions) {
		o.Tools = tools
		o.SystemPrompt = systemPrompt
		o.Once = first != ""
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
