package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/agentree/logging"
)

type memBoard struct{ notes []Note }

func (b *memBoard) Post(author, content string) Note {
	n := Note{Seq: len(b.notes) + 1, Author: author, Content: content}
	b.notes = append(b.notes, n)

	return n
}

func (b *memBoard) Read() []Note { return append([]Note(nil), b.notes...) }

func TestNewRunContext_Defaults(t *testing.T) {
	rc := NewRunContext(context.Background(), "run-1", AgentInfo{Name: "main", Type: "chat"})

	if rc.Depth != 0 || rc.Spawns == nil || rc.Limiter == nil || rc.Logger() == nil {
		t.Fatalf("unexpected defaults %+v", rc)
	}

	if rc.GetAgentName() != "main" {
		t.Fatalf("name = %q", rc.GetAgentName())
	}
}

func TestRunContext_NewChildContext(t *testing.T) {
	board := &memBoard{}
	spawns := NewSpawnLimiter(DefaultSpawnLimits)

	parent := NewRunContext(context.Background(), "run-1", AgentInfo{Name: "main"}, func(o *RunContextOptions) {
		o.Config.SystemPrompt = "override"
		o.Board = board
		o.Spawns = spawns
		o.MaxModelCalls = 7
	})

	child, cancel := parent.NewChildContext("researcher")
	defer cancel()

	if child.Depth != 1 || child.RunID != "run-1" {
		t.Fatalf("depth=%d run=%q", child.Depth, child.RunID)
	}

	if child.Agent != (AgentInfo{Name: "researcher", Type: "sub"}) {
		t.Fatalf("agent = %+v", child.Agent)
	}

	if child.Config.SystemPrompt != "" {
		t.Fatal("the per-run prompt override must not reach sub-agents")
	}

	if child.Board != board || child.Spawns != spawns {
		t.Fatal("board and spawn limiter are shared by reference")
	}

	if child.Limiter == parent.Limiter || child.Limiter.Remaining() != 7 {
		t.Fatal("child gets its own model budget of the same size")
	}

	grandchild, cancelGrand := child.NewChildContext("helper")
	defer cancelGrand()

	cancel()

	if !errors.Is(grandchild.Err(), context.Canceled) {
		t.Fatal("cancelling a child aborts its subtree")
	}

	if parent.Err() != nil {
		t.Fatal("cancelling a child must not cancel the parent")
	}
}

func TestToolContext(t *testing.T) {
	board := &memBoard{}

	rc := NewRunContext(context.Background(), "run-1", AgentInfo{Name: "main"}, func(o *RunContextOptions) {
		o.Board = board
	})

	tc := NewToolContext(rc, "call-1")

	if tc.FunctionCallID() != "call-1" || tc.RunID() != "run-1" || tc.AgentName() != "main" || tc.Depth() != 0 {
		t.Fatalf("unexpected tool context %+v", tc)
	}

	if tc.Context() != rc.Context || tc.RunContext() != rc {
		t.Fatal("tool context must expose the caller's scope")
	}

	tc.Board().Post("main", "note")

	if len(board.Read()) != 1 {
		t.Fatal("tool context writes to the run's board")
	}

	tc.LogInfo("tool.test", "k", "v")
}

func TestRunContext_ScopedLogFields(t *testing.T) {
	var buf bytes.Buffer

	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})

	rc := NewRunContext(context.Background(), "run-1", AgentInfo{Name: "main"}, func(o *RunContextOptions) {
		o.Logger = logger
	})

	child, cancel := rc.NewChildContext("researcher")
	defer cancel()

	rc.LogInfo("run.test")
	child.LogInfo("child.test")
	NewToolContext(child, "call-7").LogWarn("tool.test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d entries: %q", len(lines), buf.String())
	}

	want := []map[string]string{
		{"run_id": "run-1", "agent": "main"},
		{"run_id": "run-1", "agent": "researcher"},
		{"run_id": "run-1", "agent": "researcher", "call_id": "call-7"},
	}

	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}

		for k, v := range want[i] {
			if entry[k] != v {
				t.Fatalf("entry %d: %s = %v, want %q", i, k, entry[k], v)
			}
		}
	}

	if strings.Contains(lines[0], "call_id") {
		t.Fatal("call_id must only appear on tool entries")
	}
}
