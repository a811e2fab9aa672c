package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ConsoleOptions configures RunConsole.
type ConsoleOptions struct {
	// Tools and SystemPrompt are attached to every input that starts a turn.
	Tools        []string
	SystemPrompt string
	// Once returns as soon as the first turn has finished.
	Once bool
}

// FormatLine renders a line for a terminal.
func FormatLine(line Line) string {
	switch line.Kind {
	case KindQuestion:
		return "[Follow-up question]: " + line.Text
	case KindToolCall:
		return fmt.Sprintf("-> %s %s", line.Name, line.Text)
	case KindToolResult:
		return fmt.Sprintf("<- %s %s", line.Name, line.Text)
	case KindStep:
		return "== " + line.Text
	case KindError:
		return "error: " + line.Text
	case KindDone:
		return ""
	default:
		return line.Text
	}
}

// isExitCommand reports whether text asks the console to quit.
func isExitCommand(text string) bool {
	switch strings.ToLower(text) {
	case "exit", "quit":
		return true
	default:
		return false
	}
}

// RunConsole feeds lines of r into session and prints its output to w. On
// end of input it waits for the running turn, then closes the session.
// "exit" or "quit" says goodbye and closes the session at once, unless a
// turn is waiting for an answer, which then receives the word.
// Cancelling ctx closes the session immediately.
func RunConsole(ctx context.Context, r io.Reader, w io.Writer, session *Session, optFns ...func(o *ConsoleOptions)) error {
	opts := ConsoleOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	var finished atomic.Bool

	g, gctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		for line := range session.Lines() {
			if text := FormatLine(line); text != "" {
				if _, err := fmt.Fprintln(w, text); err != nil {
					return err
				}
			}
		}

		return nil
	})

	g.Go(func() error {
		defer session.Close()

		lines := make(chan string)
		scanErr := make(chan error, 1)

		go func() {
			defer close(lines)

			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				select {
				case lines <- scanner.Text():
				case <-gctx.Done():
					return
				}
			}

			scanErr <- scanner.Err()
		}()

		started := false

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case text, ok := <-lines:
				if !ok {
					select {
					case err := <-scanErr:
						if err != nil {
							return err
						}
					default:
					}

					return session.Wait(gctx)
				}

				text = strings.TrimSpace(text)
				if text == "" {
					continue
				}

				if isExitCommand(text) && !session.Waiting() {
					session.Emit(Line{Kind: KindMessage, Text: "Goodbye!"})
					return nil
				}

				route := session.Handle(Input{Text: text, Tools: opts.Tools, SystemPrompt: opts.SystemPrompt})

				switch {
				case route == RouteBusy:
					session.TryEmit(Line{Kind: KindError, Text: "busy: wait for the current answer"})
				case route == RouteTurn && opts.Once && !started:
					started = true

					g.Go(func() error {
						if session.Wait(gctx) == nil {
							finished.Store(true)
							stop()
						}

						return nil
					})
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && (ctx.Err() != nil || finished.Load()) {
		return nil
	}

	return err
}
