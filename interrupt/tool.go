package interrupt

import (
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/tool"
)

// ToolName is the default name of the ask-the-human tool.
const ToolName = "ask_user"

type askArgs struct {
	Question string `json:"question" jsonschema:"required,description=Follow-up question for the user"`
}

// NewTool exposes ch as a tool. The result is {"answer": text}. Bind it to a
// registry at construction via tool.RegistryOptions.Extra.
func NewTool(ch *Channel) tool.Tool {
	return NewNamedTool(ToolName, ch)
}

// NewNamedTool is NewTool with a custom tool name.
func NewNamedTool(name string, ch *Channel) tool.Tool {
	return tool.NewTypedTool(name, "Ask the user a follow-up question and wait for the answer.",
		func(tc *core.ToolContext, args askArgs) (any, error) {
			answer, err := ch.Ask(tc.Context(), args.Question)
			if err != nil {
				return nil, err
			}

			return map[string]any{"answer": answer}, nil
		})
}
