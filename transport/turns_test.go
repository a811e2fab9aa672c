package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentree/agent"
	"github.com/hupe1980/agentree/blackboard"
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/interrupt"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/orchestrator"
	"github.com/hupe1980/agentree/tool"
	"github.com/hupe1980/agentree/tool/builtin"
)

func catalog() *tool.Catalog {
	return tool.MustCatalog(builtin.Tools()...)
}

func kinds(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Kind
	}

	return out
}

func TestMessageLines(t *testing.T) {
	assert.Empty(t, MessageLines(core.HumanMessage("hi")))

	lines := MessageLines(core.AssistantMessage("thinking",
		model.Call("1", builtin.CalculatorName, map[string]any{"expression": "2+2"})))
	assert.Equal(t, []Line{
		{Kind: KindMessage, Text: "thinking"},
		{Kind: KindToolCall, Name: builtin.CalculatorName, Text: `{"expression":"2+2"}`},
	}, lines)

	lines = MessageLines(core.ToolResultMessage(builtin.CalculatorName, "1", `{"result":4}`))
	assert.Equal(t, []Line{{Kind: KindToolResult, Name: builtin.CalculatorName, Text: `{"result":4}`}}, lines)
}

func TestChatTurn_StreamsOnlyNewMessages(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("c1", builtin.CalculatorName, map[string]any{"expression": "2+2"})),
		model.Say("4"),
		model.Say("again"),
	)

	chat := NewChatTurn(llm, catalog())
	s := NewSession(chat)
	defer s.Close()

	s.Handle(Input{Text: "what is 2+2"})

	lines := untilDone(t, s)
	assert.Equal(t, []string{KindToolCall, KindToolResult, KindMessage, KindDone}, kinds(lines))
	assert.Equal(t, builtin.CalculatorName, lines[0].Name)
	assert.Equal(t, "4", lines[2].Text)

	require.NoError(t, s.Wait(context.Background()))
	s.Handle(Input{Text: "once more"})

	lines = untilDone(t, s)
	assert.Equal(t, []Line{{Kind: KindMessage, Text: "again"}, {Kind: KindDone}}, lines)

	// the conversation persists across turns
	msgs := chat.Conversation().Messages()
	require.Len(t, msgs, 6)
	assert.Equal(t, "what is 2+2", msgs[0].Content)
	assert.Equal(t, "once more", msgs[4].Content)

	// the second request saw the whole history
	reqs := llm.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[2].Messages, 5)
}

func TestChatTurn_AskUser(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("c1", interrupt.ToolName, map[string]any{"question": "Уточните дату"})),
		model.Say("Бронь на завтра"),
	)

	chat := NewChatTurn(llm, catalog())
	s := NewSession(chat)
	defer s.Close()

	assert.Equal(t, RouteTurn, s.Handle(Input{Text: "Забронируй столик"}))

	assert.Equal(t, KindToolCall, next(t, s).Kind)
	assert.Equal(t, Line{Kind: KindQuestion, Text: "Уточните дату"}, next(t, s))

	require.Eventually(t, s.Waiting, time.Second, time.Millisecond)
	assert.Equal(t, RouteAnswer, s.Handle(Input{Text: "завтра"}))

	lines := untilDone(t, s)
	assert.Equal(t, []string{KindToolResult, KindMessage, KindDone}, kinds(lines))
	assert.JSONEq(t, `{"answer":"завтра"}`, lines[0].Text)
	assert.Equal(t, "Бронь на завтра", lines[1].Text)

	var humans []string

	for _, m := range chat.Conversation().Messages() {
		if m.Role == core.RoleHuman {
			humans = append(humans, m.Content)
		}
	}

	assert.Equal(t, []string{"Забронируй столик", "завтра"}, humans)
}

func TestChatTurn_RequestedToolsAndSystemPrompt(t *testing.T) {
	llm := model.NewScriptedModel(model.Say("ok"))

	s := NewSession(NewChatTurn(llm, catalog()))
	defer s.Close()

	s.Handle(Input{Text: "hi", Tools: []string{builtin.CalculatorName, "no_such_tool"}, SystemPrompt: "Be brief."})
	untilDone(t, s)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Be brief.", reqs[0].System)

	var names []string
	for _, d := range reqs[0].Tools {
		names = append(names, d.Name)
	}

	assert.ElementsMatch(t, []string{builtin.CalculatorName, interrupt.ToolName}, names)
}

func TestOrchestratorTurn_StreamsPerStep(t *testing.T) {
	llm := model.NewScriptedModel(model.Say("first done"), model.Say("second done"))

	board := blackboard.New()
	orch := orchestrator.New(llm, func(o *orchestrator.Options) { o.Board = board })

	s := NewSession(NewOrchestratorTurn(orch, catalog()))
	defer s.Close()

	s.Handle(Input{Text: "Найди погоду. Сообщи результат."})

	lines := untilDone(t, s)
	assert.Equal(t, []Line{
		{Kind: KindStep, Text: "Найди погоду"},
		{Kind: KindMessage, Text: "first done"},
		{Kind: KindStep, Text: "Сообщи результат"},
		{Kind: KindMessage, Text: "second done"},
		{Kind: KindDone},
	}, lines)
}

func TestOrchestratorTurn_StepFailure(t *testing.T) {
	llm := model.NewScriptedModel() // exhausted at once

	orch := orchestrator.New(llm, func(o *orchestrator.Options) {
		o.AgentOptions = append(o.AgentOptions, func(ao *agent.Options) {
			ao.Retry = model.RetryPolicy{MaxAttempts: 1, Timeout: time.Second}
		})
	})

	s := NewSession(NewOrchestratorTurn(orch, catalog()))
	defer s.Close()

	s.Handle(Input{Text: "only step"})

	lines := untilDone(t, s)
	assert.Equal(t, []string{KindStep, KindError, KindDone}, kinds(lines))
	assert.Contains(t, lines[1].Text, "only step")
}
