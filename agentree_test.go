package agentree

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentree/agent"
	"github.com/hupe1980/agentree/config"
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/tool/builtin"
	"github.com/hupe1980/agentree/transport"
)

func newApp(t *testing.T, cfg *config.Config, llm model.Model) *App {
	t.Helper()

	app, err := New(cfg, func(o *Options) {
		o.Model = llm
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	return app
}

func TestNew_Catalogs(t *testing.T) {
	app := newApp(t, config.Default(), model.NewScriptedModel())

	assert.Equal(t, agent.SpawnToolName, app.Catalog().Names()[0])
	assert.Len(t, app.Catalog().Names(), len(builtin.Tools())+1)
	assert.NotContains(t, app.SecondaryCatalog().Names(), agent.SpawnToolName)

	cfg := config.Default()
	cfg.Tools.Orchestrator = []string{agent.SpawnToolName, builtin.ProvideAnswerName}
	cfg.Tools.Secondary = []string{builtin.CalculatorName, builtin.ReadNotesName}

	app = newApp(t, cfg, model.NewScriptedModel())
	assert.Equal(t, []string{agent.SpawnToolName, builtin.ProvideAnswerName}, app.Catalog().Names())
	assert.Equal(t, []string{builtin.CalculatorName, builtin.ReadNotesName}, app.SecondaryCatalog().Names())
}

func TestNew_UnknownTool(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.Secondary = []string{"teleport"}

	_, err := New(cfg, func(o *Options) { o.Model = model.NewScriptedModel() })
	assert.ErrorIs(t, err, core.ErrToolNotFound)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: config.ProviderOpenAI, Name: "gpt-4o-mini", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)

	m, err = NewModel(config.ModelConfig{Provider: config.ProviderAnthropic, Name: "claude-3-5-sonnet-20241022", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	_, err = NewModel(config.ModelConfig{Provider: "llama"})
	assert.Error(t, err)
}

func TestRun_SpawnPostsToBoardAndMirror(t *testing.T) {
	mirror := filepath.Join(t.TempDir(), "notes.jsonl")

	cfg := config.Default()
	cfg.Blackboard.MirrorPath = mirror
	cfg.Retry = model.RetryPolicy{MaxAttempts: 1, Timeout: time.Second}

	llm := model.NewScriptedModel(
		// step agent spawns a researcher
		model.Say("", model.Call("1", agent.SpawnToolName, map[string]any{
			"name":          "researcher",
			"system_prompt": "You research weather.",
			"task":          "Weather in Moscow?",
		})),
		// researcher answers
		model.Say("+3°C, cloudy"),
		// step agent finishes
		model.Say("It is +3°C in Moscow."),
	)

	app := newApp(t, cfg, llm)

	results, err := app.Run(context.Background(), "Find the weather in Moscow")
	require.NoError(t, err)
	require.Len(t, results, 1)

	last := results[0][len(results[0])-1]
	assert.Equal(t, "It is +3°C in Moscow.", last.Content)

	notes := app.Board().Read()
	require.Len(t, notes, 1)
	assert.Equal(t, "researcher", notes[0].Author)
	assert.Equal(t, "+3°C, cloudy", notes[0].Content)
	assert.FileExists(t, mirror)
}

func TestNewSession_Chat(t *testing.T) {
	app := newApp(t, config.Default(), model.NewScriptedModel(model.Say("hello there")))

	s, err := app.NewSession(ModeChat)
	require.NoError(t, err)
	defer s.Close()

	s.Handle(transport.Input{Text: "hi"})

	select {
	case line := <-s.Lines():
		assert.Equal(t, transport.Line{Kind: transport.KindMessage, Text: "hello there"}, line)
	case <-time.After(time.Second):
		t.Fatal("no output")
	}

	_, err = app.NewSession("nope")
	assert.Error(t, err)
}

// chatTurn sends text to s and collects lines up to the done line.
func chatTurn(t *testing.T, s *transport.Session, text string) []transport.Line {
	t.Helper()

	require.Equal(t, transport.RouteTurn, s.Handle(transport.Input{Text: text}))

	var lines []transport.Line

	for {
		select {
		case line := <-s.Lines():
			lines = append(lines, line)
			if line.Kind == transport.KindDone {
				return lines
			}
		case <-time.After(2 * time.Second):
			t.Fatal("turn did not finish")
		}
	}
}

func TestNewSession_ChatBoardIsPerSession(t *testing.T) {
	mirror := filepath.Join(t.TempDir(), "notes.jsonl")
	require.NoError(t, os.WriteFile(mirror, []byte(`{"stale":true}`+"\n"), 0o600))

	cfg := config.Default()
	cfg.Blackboard.MirrorPath = mirror
	cfg.Retry = model.RetryPolicy{MaxAttempts: 1, Timeout: time.Second}

	spawn := func(id, name string) core.ToolCall {
		return model.Call(id, agent.SpawnToolName, map[string]any{
			"name":          name,
			"system_prompt": "You keep secrets.",
			"task":          "Remember something.",
		})
	}

	llm := model.NewScriptedModel(
		// alice's session
		model.Say("", spawn("1", "alice")),
		model.Say("alice-secret"),
		model.Say("noted"),
		// bob's session
		model.Say("", spawn("2", "bob")),
		model.Say("bob-note"),
		model.Say("", model.Call("3", builtin.ReadNotesName, map[string]any{})),
		model.Say("done"),
	)

	app := newApp(t, cfg, llm)

	alice, err := app.NewSession(ModeChat)
	require.NoError(t, err)
	defer alice.Close()

	chatTurn(t, alice, "keep this")

	bob, err := app.NewSession(ModeChat)
	require.NoError(t, err)
	defer bob.Close()

	var notes string

	for _, line := range chatTurn(t, bob, "what do you know?") {
		if line.Kind == transport.KindToolResult && line.Name == builtin.ReadNotesName {
			notes = line.Text
		}
	}

	assert.Contains(t, notes, "bob-note")
	assert.NotContains(t, notes, "alice-secret")
	assert.Contains(t, notes, `"seq":1`)

	data, err := os.ReadFile(mirror)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"author":"bob"`)
	assert.NotContains(t, string(data), "stale")

	assert.Empty(t, app.Board().Read())
}

func TestNew_WithBuiltLogger(t *testing.T) {
	_, err := New(config.Default(), func(o *Options) {
		o.Model = model.NewScriptedModel()
		o.LogOutput = io.Discard
	})
	assert.NoError(t, err)
}
