package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// OutputFormat is the value of the global -o flag.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Formatter prints command results in the selected output format.
type Formatter interface {
	PrintSuccess(message string) error
	PrintWarning(message string) error
	PrintError(message string) error
	// PrintTable prints rows whose cells line up with headers.
	PrintTable(headers []string, rows [][]string) error
	PrintJSON(data any) error
}

type status int

const (
	statusSuccess status = iota
	statusWarning
	statusError
)

var statusStyle = map[status]struct {
	name   string
	symbol string
	attr   color.Attribute
}{
	statusSuccess: {"success", "✓", color.FgGreen},
	statusWarning: {"warning", "!", color.FgYellow},
	statusError:   {"error", "✗", color.FgRed},
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewFormatter picks the formatter for format.
func NewFormatter(format OutputFormat, w io.Writer) Formatter {
	if format == FormatJSON {
		return NewJSONFormatter(w)
	}
	return NewTextFormatter(w)
}

// TextFormatter prints aligned tables and marked status lines. Marks are
// colored only on a terminal.
type TextFormatter struct {
	w       io.Writer
	noColor bool
}

func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{w: w, noColor: !IsTerminal(w)}
}

func (f *TextFormatter) status(s status, message string) error {
	style := statusStyle[s]
	mark := color.New(style.attr, color.Bold)
	if f.noColor {
		mark.DisableColor()
	}
	_, err := fmt.Fprintln(f.w, mark.Sprint(style.symbol), message)
	return err
}

func (f *TextFormatter) PrintSuccess(message string) error { return f.status(statusSuccess, message) }
func (f *TextFormatter) PrintWarning(message string) error { return f.status(statusWarning, message) }
func (f *TextFormatter) PrintError(message string) error   { return f.status(statusError, message) }

func (f *TextFormatter) PrintTable(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)

	head := make([]string, len(headers))
	rule := make([]string, len(headers))
	for i, h := range headers {
		head[i] = strings.ToUpper(h)
		rule[i] = strings.Repeat("-", len(h))
	}
	lines := append([][]string{head, rule}, rows...)
	for _, cells := range lines {
		if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func (f *TextFormatter) PrintJSON(data any) error {
	return writeJSON(f.w, data)
}

// JSONFormatter prints everything as indented JSON documents.
type JSONFormatter struct {
	w io.Writer
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{w: w}
}

func (f *JSONFormatter) status(s status, message string) error {
	return writeJSON(f.w, map[string]string{"status": statusStyle[s].name, "message": message})
}

func (f *JSONFormatter) PrintSuccess(message string) error { return f.status(statusSuccess, message) }
func (f *JSONFormatter) PrintWarning(message string) error { return f.status(statusWarning, message) }
func (f *JSONFormatter) PrintError(message string) error   { return f.status(statusError, message) }

// PrintTable prints an array with one object per row, keyed by header.
// Missing cells are empty strings.
func (f *JSONFormatter) PrintTable(headers []string, rows [][]string) error {
	objects := make([]map[string]string, len(rows))
	for r, row := range rows {
		obj := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				obj[h] = row[i]
			} else {
				obj[h] = ""
			}
		}
		objects[r] = obj
	}
	return writeJSON(f.w, objects)
}

func (f *JSONFormatter) PrintJSON(data any) error {
	return writeJSON(f.w, data)
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
