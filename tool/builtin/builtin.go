package builtin

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/tool"
)

// Tool names.
const (
	CalculatorName    = "calculator"
	AddDaysName       = "add_days"
	CurrentDateName   = "current_date"
	ReadWebpageName   = "read_webpage"
	SendEmailName     = "send_email"
	ReadNotesName     = "read_notes"
	ProvideAnswerName = "provide_answer"
)

// DateLayout is the calendar date format used by the date tools.
const DateLayout = "2006-01-02"

// Clock returns the current time.
type Clock func() time.Time

// Options configures the built-in tool set.
type Options struct {
	Clock   Clock
	Webpage WebpageOptions
	Mailer  Mailer
}

// Tools returns every built-in tool.
func Tools(optFns ...func(o *Options)) []tool.Tool {
	opts := Options{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	return []tool.Tool{
		NewCalculator(),
		NewAddDays(),
		NewCurrentDate(opts.Clock),
		NewReadWebpage(func(o *WebpageOptions) { *o = mergeWebpage(*o, opts.Webpage) }),
		NewSendEmail(opts.Mailer),
		NewReadNotes(),
		NewProvideAnswer(),
	}
}

type calculatorArgs struct {
	Expression string `json:"expression" jsonschema:"required,description=Arithmetic expression such as 2+2*3 or sqrt(16); ** and ^ both raise to a power"`
}

// NewCalculator returns a tool evaluating arithmetic expressions. Only
// numbers, operators and a fixed set of math constants and functions are
// understood; anything else is rejected without being executed.
func NewCalculator() *tool.FunctionTool {
	return tool.NewTypedTool(CalculatorName, "Evaluate a mathematical expression and return the result.",
		func(_ *core.ToolContext, args calculatorArgs) (any, error) {
			v, err := Evaluate(args.Expression)
			if err != nil {
				return nil, err
			}

			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("result of %q is not a finite number", args.Expression)
			}

			return map[string]any{"result": v}, nil
		})
}

type addDaysArgs struct {
	Date string `json:"date" jsonschema:"required,description=Start date in YYYY-MM-DD format"`
	Days int    `json:"days" jsonschema:"required,description=Number of days to add (negative to subtract)"`
}

// NewAddDays returns a tool shifting a calendar date by a number of days.
func NewAddDays() *tool.FunctionTool {
	return tool.NewTypedTool(AddDaysName, "Add a number of days to a date given as YYYY-MM-DD.",
		func(_ *core.ToolContext, args addDaysArgs) (any, error) {
			d, err := time.Parse(DateLayout, strings.TrimSpace(args.Date))
			if err != nil {
				return nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", args.Date)
			}

			return map[string]any{"date": d.AddDate(0, 0, args.Days).Format(DateLayout)}, nil
		})
}

type noArgs struct{}

// NewCurrentDate returns a tool reporting today's date and weekday.
func NewCurrentDate(clock Clock) *tool.FunctionTool {
	if clock == nil {
		clock = time.Now
	}

	return tool.NewTypedTool(CurrentDateName, "Return the current date as YYYY-MM-DD and the day of the week.",
		func(_ *core.ToolContext, _ noArgs) (any, error) {
			now := clock()

			return map[string]any{
				"date":        now.Format(DateLayout),
				"day_of_week": now.Weekday().String(),
			}, nil
		})
}

// Mailer delivers an email. The default implementation only records the
// request in the log.
type Mailer interface {
	Send(toolCtx *core.ToolContext, recipient, subject, body string) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(toolCtx *core.ToolContext, recipient, subject, body string) error

// Send implements Mailer.
func (f MailerFunc) Send(toolCtx *core.ToolContext, recipient, subject, body string) error {
	return f(toolCtx, recipient, subject, body)
}

type logMailer struct{}

func (logMailer) Send(toolCtx *core.ToolContext, recipient, subject, _ string) error {
	toolCtx.LogInfo("tool.send_email.logged", "recipient", recipient, "subject", subject)
	return nil
}

type sendEmailArgs struct {
	Recipient string `json:"recipient" jsonschema:"required,description=Recipient email address"`
	Subject   string `json:"subject" jsonschema:"required,description=Subject line"`
	Body      string `json:"body" jsonschema:"required,description=Message text"`
}

// NewSendEmail returns a tool sending an email through mailer. A nil mailer
// logs the message instead of delivering it.
func NewSendEmail(mailer Mailer) *tool.FunctionTool {
	if mailer == nil {
		mailer = logMailer{}
	}

	return tool.NewTypedTool(SendEmailName, "Send an email to a recipient.",
		func(toolCtx *core.ToolContext, args sendEmailArgs) (any, error) {
			addr, err := mail.ParseAddress(args.Recipient)
			if err != nil {
				return nil, fmt.Errorf("invalid recipient %q: %w", args.Recipient, err)
			}

			if err := mailer.Send(toolCtx, addr.Address, args.Subject, args.Body); err != nil {
				return nil, err
			}

			return map[string]any{"status": "sent"}, nil
		})
}

// NewReadNotes returns the tool exposing the run's shared blackboard.
// Every spawned sub-agent gets it regardless of its requested tools.
func NewReadNotes() *tool.FunctionTool {
	return tool.NewTypedTool(ReadNotesName, "Read the notes posted by other agents of this run, oldest first.",
		func(toolCtx *core.ToolContext, _ noArgs) (any, error) {
			board := toolCtx.Board()
			if board == nil {
				return map[string]any{"notes": []core.Note{}}, nil
			}

			notes := board.Read()
			if notes == nil {
				notes = []core.Note{}
			}

			return map[string]any{"notes": notes}, nil
		})
}

type provideAnswerArgs struct {
	Answer string `json:"answer" jsonschema:"required,description=The final answer for the user"`
}

// ErrEmptyAnswer is returned by the provide_answer tool for a blank answer.
var ErrEmptyAnswer = errors.New("answer must not be empty")

// NewProvideAnswer returns the tool an agent calls to deliver its final
// response. With the response-gated exit policy the loop ends after it runs.
func NewProvideAnswer() *tool.FunctionTool {
	return tool.NewTypedTool(ProvideAnswerName, "Deliver the final answer to the user.",
		func(_ *core.ToolContext, args provideAnswerArgs) (any, error) {
			if strings.TrimSpace(args.Answer) == "" {
				return nil, ErrEmptyAnswer
			}

			return map[string]any{"answer": args.Answer}, nil
		})
}
