package tendril

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/tendril/pkg/domain"
)

// Runner drives one conversation over line-based IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer

	// JSON switches to JSON-Lines: every input line is a JSON value or plain
	// text, and every turn is written as one JSON object.
	JSON bool

	// ConversationID defaults to "local".
	ConversationID string
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner over in and out.
func NewRunner(in io.Reader, out io.Writer) *Runner {
	return &Runner{Input: in, Output: out}
}

// Commands understood by the runner itself.
const (
	cmdExit  = "exit"
	cmdQuit  = "quit"
	cmdReset = "/reset"
)

// Run reads lines until EOF or an exit command and prints every reply.
// While a card is waiting, a line is parsed as a JSON object or as
// comma-separated key=value pairs; anything else is sent as text.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return errors.New("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return errors.New("output writer must be set (use os.Stdout)")
	}
	id := r.ConversationID
	if id == "" {
		id = "local"
	}
	lines := bufio.NewScanner(r.Input)

	if r.JSON {
		return r.runJSON(ctx, engine, id, lines)
	}
	if !r.Headless {
		fmt.Fprintln(r.Output, "--- Tendril chat (type 'exit' to leave, '/reset' to start over) ---")
	}

	var card *domain.CardPayload
	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		if !lines.Scan() {
			if err := lines.Err(); err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			return nil
		}
		text := strings.TrimSpace(lines.Text())
		switch text {
		case "":
			continue
		case cmdExit, cmdQuit:
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		case cmdReset:
			if err := engine.Reset(ctx, id); err != nil {
				return fmt.Errorf("reset error: %w", err)
			}
			card = nil
			fmt.Fprintln(r.Output, "(conversation reset)")
			continue
		}

		var input any = text
		if card != nil {
			input = ParseCardInput(text)
		}
		turn, err := engine.Send(ctx, id, input)
		if err != nil {
			return fmt.Errorf("turn error: %w", err)
		}
		card = nil
		if turn.Waiting {
			card = turn.LastCard()
		}
		r.print(turn)
	}
}

func (r *Runner) runJSON(ctx context.Context, engine *Engine, id string, lines *bufio.Scanner) error {
	enc := json.NewEncoder(r.Output)
	for lines.Scan() {
		text := strings.TrimSpace(lines.Text())
		switch text {
		case "":
			continue
		case cmdExit, cmdQuit:
			return nil
		case cmdReset:
			if err := engine.Reset(ctx, id); err != nil {
				return fmt.Errorf("reset error: %w", err)
			}
			if err := enc.Encode(map[string]any{"conversation_id": id, "reset": true}); err != nil {
				return err
			}
			continue
		}
		turn, err := engine.Send(ctx, id, decodeLine(text))
		if err != nil {
			return fmt.Errorf("turn error: %w", err)
		}
		if err := enc.Encode(turn); err != nil {
			return err
		}
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("input error: %w", err)
	}
	return nil
}

// decodeLine reads a JSON object or string, falling back to the raw text.
func decodeLine(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		switch val := v.(type) {
		case map[string]any:
			return val
		case string:
			return val
		}
	}
	return text
}

func (r *Runner) print(turn *domain.Turn) {
	for _, reply := range turn.Replies {
		switch reply.Kind {
		case domain.ReplyMessage:
			r.println(reply.Text)
		case domain.ReplyCard:
			r.println(FormatCard(reply.Card))
		case domain.ReplyEvent:
			if !r.Headless {
				r.println(fmt.Sprintf("[event %s]", reply.Event.Name))
			}
		}
	}
}

func (r *Runner) println(msg string) {
	out := msg
	if r.Renderer != nil {
		if rendered, err := r.Renderer(msg); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(out))
}

// ParseCardInput turns a typed line into card values: a JSON object, or
// "key=value, key=value" pairs. Other text is returned unchanged.
func ParseCardInput(line string) any {
	if strings.HasPrefix(line, "{") {
		var values map[string]any
		if err := json.Unmarshal([]byte(line), &values); err == nil {
			return values
		}
		return line
	}
	if !strings.Contains(line, "=") {
		return line
	}
	values := make(map[string]any)
	for _, part := range strings.Split(line, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return line
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return values
}

// FormatCard renders a card as plain markdown: its title, its fields and
// any validation errors.
func FormatCard(card *domain.CardPayload) string {
	if card == nil {
		return ""
	}
	var b strings.Builder
	title, _ := card.Document["title"].(string)
	if title == "" {
		title = card.CardID
	}
	fmt.Fprintf(&b, "**%s**\n", title)
	if text, ok := card.Document["text"].(string); ok && text != "" {
		fmt.Fprintf(&b, "%s\n", text)
	}
	if fields, ok := card.Document["fields"].([]any); ok {
		for _, f := range fields {
			fmt.Fprintf(&b, "- %v\n", f)
		}
	}
	if opts, ok := card.Document["options"].([]string); ok {
		fmt.Fprintf(&b, "(%s)\n", strings.Join(opts, " / "))
	}
	if len(card.Errors) > 0 {
		fields := make([]string, 0, len(card.Errors))
		for f := range card.Errors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(&b, "! %s: %s\n", f, strings.Join(card.Errors[f], "; "))
		}
	}
	return b.String()
}
