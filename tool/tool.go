// Package tool implements the tool calling subsystem: the uniform Tool
// contract, schema validated function tools, the validated Catalog a run
// draws from, the immutable per-agent Registry and the Dispatcher that turns
// every failure into a recoverable {"error": ...} result.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/internal/util"
)

// Tool is a named, schema-described capability invocable by the model.
//
// Implementations should:
//   - Provide a clear, snake_case name and an imperative description
//   - Declare a JSON schema for their arguments
//   - Return (*ToolError or plain) errors instead of panicking
//   - Respect toolCtx.Context() cancellation when they block
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns the text shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeExecution     = "EXECUTION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeResourceLimit = "RESOURCE_LIMIT"
	CodeTimeout       = "TIMEOUT"
	CodePanic         = "PANIC"
	CodeCancelled     = "CANCELLED"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`    // Name of the tool that failed
	Message string `json:"message"` // Error message
	Code    string `json:"code"`    // Error code for categorization
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}

	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is works on sentinel errors.
func (e *ToolError) Unwrap() error { return e.cause }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// WrapError converts err into a *ToolError for tool, picking the code from
// well-known sentinel errors. An existing *ToolError is returned unchanged.
func WrapError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	code := CodeExecution

	switch {
	case errors.Is(err, core.ErrSpawnLimit), errors.Is(err, core.ErrMaxModelCalls):
		code = CodeResourceLimit
	case errors.Is(err, core.ErrInterruptTimeout):
		code = CodeTimeout
	case errors.Is(err, core.ErrToolNotFound):
		code = CodeNotFound
	}

	return &ToolError{Tool: tool, Message: err.Error(), Code: code, cause: err}
}
