package transform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	reviewPanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	reviewTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// ConsoleOperator is a line-based Operator reading answers from in and
// writing the review panel to out.
//
// Commands: "a" (accept), "e" followed by the replacement text on the next
// line (edit), "c N" (convert with sub-transformer N).
type ConsoleOperator struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	noColor bool

	readerOnce sync.Once
	lines      chan lineResult
}

// NewConsoleOperator creates a console operator. Set noColor when out is not
// a terminal.
func NewConsoleOperator(in io.Reader, out io.Writer, noColor bool) *ConsoleOperator {
	return &ConsoleOperator{in: bufio.NewReader(in), out: out, noColor: noColor}
}

func (o *ConsoleOperator) Decide(ctx context.Context, review Review) (Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.render(review)

	for {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}

		fmt.Fprint(o.out, "> ")
		line, err := o.readLine(ctx)
		if err != nil {
			return Decision{}, err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "a", "accept":
			return Decision{Action: ActionAccept}, nil

		case "e", "edit":
			fmt.Fprintln(o.out, "Enter replacement text:")
			text, err := o.readLine(ctx)
			if err != nil {
				return Decision{}, err
			}
			return Decision{Action: ActionEdit, Text: text}, nil

		case "c", "convert":
			if len(fields) < 2 {
				o.warn("usage: c <index>")
				continue
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil || idx < 0 || idx >= len(review.Transformers) {
				o.warn(fmt.Sprintf("index must be between 0 and %d", len(review.Transformers)-1))
				continue
			}
			return Decision{Action: ActionConvert, Index: idx}, nil

		default:
			o.warn("unknown command " + strconv.Quote(fields[0]))
		}
	}
}

func (o *ConsoleOperator) render(review Review) {
	title := fmt.Sprintf("Review prompt (round %d, %s)", review.Round, review.DataType)
	if review.Turn > 0 {
		title = fmt.Sprintf("Review prompt (turn %d, round %d, %s)", review.Turn, review.Round, review.DataType)
	}
	if !o.noColor {
		title = reviewTitle.Render(title)
	}

	var b strings.Builder
	b.WriteString(title)
	if review.ConversationID != "" {
		b.WriteString("\nconversation " + review.ConversationID)
	}
	if review.Notice != "" {
		b.WriteString("\nnot applied: " + review.Notice)
	}
	b.WriteString("\n\n")
	b.WriteString(review.Content)
	b.WriteString("\n\n[a] accept  [e] edit")
	if len(review.Transformers) > 0 {
		b.WriteString("  [c N] convert with:")
		for i, name := range review.Transformers {
			fmt.Fprintf(&b, "\n  %d: %s", i, name)
		}
	}

	if o.noColor {
		fmt.Fprintln(o.out, b.String())
		return
	}
	fmt.Fprintln(o.out, reviewPanel.Render(b.String()))
}

func (o *ConsoleOperator) warn(msg string) {
	c := color.New(color.FgYellow)
	if o.noColor {
		c.DisableColor()
	}
	c.Fprintln(o.out, msg)
}

type lineResult struct {
	line string
	err  error
}

// readLine reads one line, giving up when ctx is done. A single goroutine
// owns the reader so an abandoned read is picked up by the next call.
func (o *ConsoleOperator) readLine(ctx context.Context) (string, error) {
	o.readerOnce.Do(func() {
		o.lines = make(chan lineResult)
		go func() {
			for {
				line, err := o.in.ReadString('\n')
				o.lines <- lineResult{line: line, err: err}
				if err != nil {
					close(o.lines)
					return
				}
			}
		}()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-o.lines:
		if !ok {
			return "", io.EOF
		}
		if r.err != nil && (r.err != io.EOF || r.line == "") {
			return "", r.err
		}
		return strings.TrimRight(r.line, "\r\n"), nil
	}
}
