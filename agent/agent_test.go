package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentree/blackboard"
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/internal/testutil"
	"github.com/hupe1980/agentree/interrupt"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/tool"
	"github.com/hupe1980/agentree/tool/builtin"
)

var fastRetry = model.RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, Timeout: time.Second}

func testCatalog() *tool.Catalog {
	return tool.MustCatalog(builtin.Tools()...)
}

func allTools() *tool.Registry {
	return tool.NewRegistry(testCatalog(), func(o *tool.RegistryOptions) { o.All = true })
}

func withRetry(o *Options) { o.Retry = fastRetry }

func TestShouldUseTool(t *testing.T) {
	assert.Equal(t, StateEnd, ShouldUseTool(core.AssistantMessage("done")))
	assert.Equal(t, StateAct, ShouldUseTool(core.AssistantMessage("", model.Call("1", "calculator", nil))))
	assert.Equal(t, StateEnd, ShouldUseTool(core.HumanMessage("hi")))
}

func TestNextAfterAct(t *testing.T) {
	final := testutil.NewConversationBuilder().
		Call(builtin.ProvideAnswerName, map[string]any{"answer": "x"}).
		Result(builtin.ProvideAnswerName, `{"answer":"x"}`).
		Build()
	other := testutil.NewConversationBuilder().
		Call(builtin.ProvideAnswerName, map[string]any{"answer": "x"}).
		Result(builtin.ProvideAnswerName, `{"answer":"x"}`).
		Call(builtin.CalculatorName, map[string]any{"expression": "1"}).
		Result(builtin.CalculatorName, `{"result":1}`).
		Build()

	assert.Equal(t, StateEnd, NextAfterAct(ExitResponseGated, builtin.ProvideAnswerName, final))
	assert.Equal(t, StateReflect, NextAfterAct(ExitResponseGated, builtin.ProvideAnswerName, other))
	assert.Equal(t, StateReflect, NextAfterAct(ExitBaseline, builtin.ProvideAnswerName, final))
	assert.Equal(t, StateReflect, NextAfterAct(ExitResponseGated, builtin.ProvideAnswerName, core.NewConversation()))
}

func TestParseExitPolicy(t *testing.T) {
	p, err := ParseExitPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ExitBaseline, p)

	p, err = ParseExitPolicy("Response-Gated")
	require.NoError(t, err)
	assert.Equal(t, ExitResponseGated, p)

	_, err = ParseExitPolicy("forever")
	assert.ErrorIs(t, err, ErrUnknownExitPolicy)
}

func TestRun_Baseline(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("c1", builtin.CalculatorName, map[string]any{"expression": "2+2*3"})),
		model.Say("The answer is 8."),
	)

	a := New("main", llm, allTools(), withRetry)
	conv := core.NewConversation(core.HumanMessage("What is 2+2*3?"))

	final, err := a.Run(testutil.RunContext(), conv)
	require.NoError(t, err)
	assert.Equal(t, "The answer is 8.", final.Content)

	msgs := conv.Messages()
	assert.Equal(t, []core.Role{core.RoleHuman, core.RoleAssistant, core.RoleTool, core.RoleAssistant}, testutil.Roles(msgs))
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, builtin.CalculatorName, msgs[2].ToolName)
	assert.JSONEq(t, `{"result":8}`, msgs[2].Content)

	// the second REFLECT sees the tool result
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3)
}

func TestRun_ActPreservesCallOrder(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("",
			model.Call("a", builtin.AddDaysName, map[string]any{"date": "2024-01-30", "days": 5}),
			model.Call("b", builtin.CalculatorName, map[string]any{"expression": "1+1"}),
			model.Call("c", builtin.CurrentDateName, nil),
		),
		model.Say("done"),
	)

	conv := core.NewConversation(core.HumanMessage("go"))

	_, err := New("main", llm, allTools(), withRetry).Run(testutil.RunContext(), conv)
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 6)
	assert.Equal(t, "a", msgs[2].ToolCallID)
	assert.JSONEq(t, `{"date":"2024-02-04"}`, msgs[2].Content)
	assert.Equal(t, "b", msgs[3].ToolCallID)
	assert.Equal(t, "c", msgs[4].ToolCallID)
}

func TestRun_EveryCallGetsOneResult(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("", builtin.CalculatorName, map[string]any{"expression": "1"}),
			model.Call("", builtin.CalculatorName, map[string]any{"expression": "2"})),
		model.Say("done"),
	)

	conv := core.NewConversation(core.HumanMessage("go"))

	_, err := New("main", llm, allTools(), withRetry).Run(testutil.RunContext(), conv)
	require.NoError(t, err)

	msgs := conv.Messages()
	calls := msgs[1].ToolCalls
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].ID)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
	assert.Equal(t, calls[0].ID, msgs[2].ToolCallID)
	assert.Equal(t, calls[1].ID, msgs[3].ToolCallID)
}

func TestRun_UnknownToolIsRecoverable(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("c1", "search_tool", map[string]any{"q": "weather"})),
		model.Say("I cannot search."),
	)

	conv := core.NewConversation(core.HumanMessage("weather?"))

	final, err := New("main", llm, allTools(), withRetry).Run(testutil.RunContext(), conv)
	require.NoError(t, err)
	assert.Equal(t, "I cannot search.", final.Content)

	msgs := conv.Messages()
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, `"error"`)
	assert.Contains(t, msgs[2].Content, "not found")
}

func TestRun_ResponseGated(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("c1", builtin.CalculatorName, map[string]any{"expression": "6*7"})),
		model.Say("", model.Call("c2", builtin.ProvideAnswerName, map[string]any{"answer": "42"})),
		model.Say("never reached"),
	)

	conv := core.NewConversation(core.HumanMessage("6*7?"))

	a := New("main", llm, allTools(), withRetry, func(o *Options) { o.ExitPolicy = ExitResponseGated })

	final, err := a.Run(testutil.RunContext(), conv)
	require.NoError(t, err)
	assert.Equal(t, "42", final.Content)
	assert.Equal(t, 1, llm.Remaining())

	last, _ := conv.Last()
	assert.Equal(t, builtin.ProvideAnswerName, last.ToolName)
}

func TestRun_BaselineNeverEndsAtAct(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("c1", builtin.ProvideAnswerName, map[string]any{"answer": "42"})),
		model.Say("42"),
	)

	conv := core.NewConversation(core.HumanMessage("?"))

	final, err := New("main", llm, allTools(), withRetry).Run(testutil.RunContext(), conv)
	require.NoError(t, err)
	assert.Equal(t, "42", final.Content)
	assert.Equal(t, 0, llm.Remaining())
	assert.Equal(t, 4, conv.Len())
}

func TestRun_SystemPromptPrecedence(t *testing.T) {
	reg := tool.NewRegistry(testCatalog(), func(o *tool.RegistryOptions) {
		o.Requested = []string{builtin.CalculatorName}
	})

	t.Run("synthesized from tool names", func(t *testing.T) {
		llm := model.NewScriptedModel(model.Say("ok"))
		_, err := New("main", llm, reg, withRetry).Run(testutil.RunContext(), core.NewConversation(core.HumanMessage("hi")))
		require.NoError(t, err)
		assert.Contains(t, llm.Requests()[0].System, builtin.CalculatorName)
		require.Len(t, llm.Requests()[0].Tools, 1)
	})

	t.Run("instruction", func(t *testing.T) {
		llm := model.NewScriptedModel(model.Say("ok"))
		a := New("main", llm, reg, withRetry, func(o *Options) {
			o.Instruction = NewInstructionFromText("You are {{.Agent}}.")
		})
		_, err := a.Run(testutil.RunContext(), core.NewConversation(core.HumanMessage("hi")))
		require.NoError(t, err)
		assert.Equal(t, "You are main.", llm.Requests()[0].System)
	})

	t.Run("per-run override wins", func(t *testing.T) {
		llm := model.NewScriptedModel(model.Say("ok"))
		a := New("main", llm, reg, withRetry, func(o *Options) {
			o.Instruction = NewInstructionFromText("instruction")
		})
		runCtx := testutil.RunContext(func(o *core.RunContextOptions) { o.Config.SystemPrompt = "override" })
		_, err := a.Run(runCtx, core.NewConversation(core.HumanMessage("hi")))
		require.NoError(t, err)
		assert.Equal(t, "override", llm.Requests()[0].System)
	})
}

func TestRun_RetryThenSucceed(t *testing.T) {
	llm := model.NewScriptedModel(model.Fail(errors.New("503")), model.Say("ok"))
	conv := core.NewConversation(core.HumanMessage("hi"))

	final, err := New("main", llm, allTools(), withRetry).Run(testutil.RunContext(), conv)
	require.NoError(t, err)
	assert.Equal(t, "ok", final.Content)
	assert.Equal(t, 2, conv.Len())
}

func TestRun_RetryExhaustedIsFatal(t *testing.T) {
	last := errors.New("still down")
	llm := model.NewScriptedModel(model.Fail(errors.New("down")), model.Fail(last))
	conv := core.NewConversation(core.HumanMessage("hi"))

	_, err := New("main", llm, allTools(), withRetry).Run(testutil.RunContext(), conv)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 1, conv.Len())
}

func TestRun_MaxModelCalls(t *testing.T) {
	loop := model.NewFuncModel(func(model.Request) (core.Message, error) {
		return core.AssistantMessage("", model.Call("", builtin.CurrentDateName, nil)), nil
	})

	_, err := New("main", loop, allTools(), withRetry, func(o *Options) { o.MaxModelCalls = 3 }).
		Run(testutil.RunContext(), core.NewConversation(core.HumanMessage("loop")))
	assert.ErrorIs(t, err, core.ErrMaxModelCalls)
	assert.Len(t, loop.Requests(), 3)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runCtx := core.NewRunContext(ctx, "run", core.AgentInfo{Name: "main"})

	_, err := New("main", model.NewScriptedModel(model.Say("ok")), allTools(), withRetry).
		Run(runCtx, core.NewConversation(core.HumanMessage("hi")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_OnMessage(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Say("", model.Call("c1", builtin.CalculatorName, map[string]any{"expression": "1"})),
		model.Say("1"),
	)

	var seen []core.Role

	a := New("main", llm, allTools(), withRetry, func(o *Options) {
		o.OnMessage = func(_ *core.RunContext, msg core.Message) { seen = append(seen, msg.Role) }
	})

	_, err := a.Run(testutil.RunContext(), core.NewConversation(core.HumanMessage("hi")))
	require.NoError(t, err)
	assert.Equal(t, []core.Role{core.RoleAssistant, core.RoleTool, core.RoleAssistant}, seen)
}

func TestRun_AskUserSuspendsAndResumes(t *testing.T) {
	ch := interrupt.New(func(o *interrupt.Options) { o.Timeout = 5 * time.Second })

	reg := tool.NewRegistry(testCatalog(), func(o *tool.RegistryOptions) {
		o.All = true
		o.Extra = []tool.Tool{interrupt.NewTool(ch)}
	})

	llm := model.NewScriptedModel(
		model.Say("", model.Call("q1", interrupt.ToolName, map[string]any{"question": "Уточните дату"})),
		model.Say("Хорошо, завтра."),
	)

	conv := core.NewConversation(core.HumanMessage("Запланируй встречу"))
	done := make(chan error, 1)

	go func() {
		_, err := New("main", llm, reg, withRetry).Run(testutil.RunContext(), conv)
		done <- err
	}()

	require.Eventually(t, ch.Waiting, time.Second, time.Millisecond)

	q, ok := ch.Pending()
	require.True(t, ok)
	assert.Equal(t, "Уточните дату", q)

	require.True(t, ch.Deliver("завтра"))
	require.NoError(t, <-done)
	assert.False(t, ch.Waiting())

	msgs := conv.Messages()
	require.Len(t, msgs, 5)
	assert.JSONEq(t, `{"answer":"завтра"}`, msgs[2].Content)
	assert.Equal(t, core.HumanMessage("завтра"), msgs[3])

	// the next REFLECT sees the answer as ordinary user input
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	lastSeen := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleHuman, lastSeen.Role)
	assert.Equal(t, "завтра", lastSeen.Content)
}

func TestRun_AskUserTimeoutIsRecoverable(t *testing.T) {
	ch := interrupt.New(func(o *interrupt.Options) { o.Timeout = 10 * time.Millisecond })

	reg := tool.NewRegistryFromTools(interrupt.NewTool(ch))
	llm := model.NewScriptedModel(
		model.Say("", model.Call("q1", interrupt.ToolName, map[string]any{"question": "?"})),
		model.Say("no answer, proceeding"),
	)

	conv := core.NewConversation(core.HumanMessage("hi"))

	_, err := New("main", llm, reg, withRetry).Run(testutil.RunContext(), conv)
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[2].Content, `"error"`)
}

func TestRun_CancelSkipsRemainingToolCalls(t *testing.T) {
	ch := interrupt.New(func(o *interrupt.Options) { o.Timeout = 5 * time.Second })

	var sent atomic.Int32

	catalog := tool.MustCatalog(builtin.Tools(func(o *builtin.Options) {
		o.Mailer = builtin.MailerFunc(func(*core.ToolContext, string, string, string) error {
			sent.Add(1)
			return nil
		})
	})...)

	reg := tool.NewRegistry(catalog, func(o *tool.RegistryOptions) {
		o.All = true
		o.Extra = []tool.Tool{interrupt.NewTool(ch)}
	})

	llm := model.NewScriptedModel(
		model.Say("",
			model.Call("q1", interrupt.ToolName, map[string]any{"question": "Send it?"}),
			model.Call("e1", builtin.SendEmailName, map[string]any{
				"recipient": "ivan@example.com",
				"subject":   "Отчёт",
				"body":      "Готово",
			}),
		),
		model.Say("unreachable"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conv := core.NewConversation(core.HumanMessage("mail the report"))
	done := make(chan error, 1)

	go func() {
		_, err := New("main", llm, reg, withRetry).Run(core.NewRunContext(ctx, "run", core.AgentInfo{Name: "main"}), conv)
		done <- err
	}()

	require.Eventually(t, ch.Waiting, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, sent.Load())

	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "q1", msgs[2].ToolCallID)
	assert.Contains(t, msgs[2].Content, `"error"`)
	assert.Equal(t, "e1", msgs[3].ToolCallID)
	assert.JSONEq(t, `{"error":"cancelled"}`, msgs[3].Content)
	assert.Len(t, llm.Requests(), 1)
}

func TestRun_ToolsSeeBoard(t *testing.T) {
	board := blackboard.New()
	board.Post("researcher", "Moscow: +20")

	llm := model.NewScriptedModel(
		model.Say("", model.Call("n1", builtin.ReadNotesName, nil)),
		model.Say("+20"),
	)

	conv := core.NewConversation(core.HumanMessage("weather?"))

	_, err := New("main", llm, allTools(), withRetry).Run(testutil.RunContext(func(o *core.RunContextOptions) { o.Board = board }), conv)
	require.NoError(t, err)
	assert.Contains(t, conv.Messages()[2].Content, "Moscow: +20")
}
