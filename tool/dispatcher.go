package tool

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentree/core"
)

// Result is the outcome of one dispatched call. Exactly one of Value / Err is meaningful.
type Result struct {
	Name  string
	Value any
	Err   *ToolError
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Payload returns the structured result, or {"error": message} on failure.
func (r Result) Payload() any {
	if r.Err != nil {
		return map[string]any{"error": r.Err.Message}
	}

	return r.Value
}

// Content renders Payload as JSON for a tool-result message.
func (r Result) Content() string {
	payload := r.Payload()
	if s, ok := payload.(string); ok {
		return s
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, "unencodable tool result: "+err.Error())
	}

	return string(data)
}

// Dispatcher executes calls against a Registry. It never returns an error and
// never lets a tool panic escape: every failure becomes a Result.Err.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher bound to registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Registry returns the bound registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Invoke executes the named tool.
func (d *Dispatcher) Invoke(toolCtx *core.ToolContext, name string, args map[string]any) (res Result) {
	res.Name = name

	impl, ok := d.registry.Get(name)
	if !ok {
		res.Err = &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("tool %q not found; available tools: %v", name, d.registry.Names()),
			Code:    CodeNotFound,
			cause:   core.ErrToolNotFound,
		}
		toolCtx.LogWarn("tool.dispatch.not_found", "tool", name)

		return res
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Value = nil
			res.Err = &ToolError{Tool: name, Message: fmt.Sprintf("tool panicked: %v", r), Code: CodePanic}
			toolCtx.LogError("tool.dispatch.panic", "tool", name, "recover", r, "stack", string(debug.Stack()))
		}
	}()

	value, err := impl.Call(toolCtx, args)
	if err != nil {
		res.Err = WrapError(name, err)
	} else {
		res.Value = value
	}

	toolCtx.LogInfo(
		"tool.dispatch.executed",
		"tool", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return res
}
