// Package printer writes human-facing progress lines: colored status marks on
// a terminal, plain text everywhere else.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// RuleWidth is the width of banner rules.
const RuleWidth = 80

// Printer writes progress to out and error reports to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	cyan   *color.Color
	bold   *color.Color
}

// New creates a printer. Colors are enabled only when out is a terminal and
// NO_COLOR is unset.
func New(out, errOut io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	p := &Printer{
		out:    out,
		errOut: errOut,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed, color.Bold),
		cyan:   color.New(color.FgCyan),
		bold:   color.New(color.Bold),
	}
	colorize := ShouldColorize(out) && os.Getenv("NO_COLOR") == ""
	for _, c := range []*color.Color{p.green, p.yellow, p.red, p.cyan, p.bold} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Discard returns a printer that writes nothing.
func Discard() *Printer {
	return New(io.Discard, io.Discard)
}

// ShouldColorize reports whether writer is an interactive terminal.
func ShouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Out returns the progress writer.
func (p *Printer) Out() io.Writer {
	return p.out
}

// Success prints a green line with a check mark.
func (p *Printer) Success(format string, a ...any) {
	p.green.Fprintln(p.out, "✓ "+fmt.Sprintf(format, a...))
}

// Failure prints a red line with a cross.
func (p *Printer) Failure(format string, a ...any) {
	p.red.Fprintln(p.out, "✗ "+fmt.Sprintf(format, a...))
}

// Warning prints a yellow line with a warning sign.
func (p *Printer) Warning(format string, a ...any) {
	p.yellow.Fprintln(p.out, "⚠ "+fmt.Sprintf(format, a...))
}

// Step prints an emphasized line for one unit of a multi-step operation.
func (p *Printer) Step(format string, a ...any) {
	p.cyan.Fprintln(p.out, "→ "+fmt.Sprintf(format, a...))
}

// Info prints a plain line.
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintln(p.out, fmt.Sprintf(format, a...))
}

// Detail prints an indented plain line under the preceding step.
func (p *Printer) Detail(format string, a ...any) {
	fmt.Fprintln(p.out, "  "+fmt.Sprintf(format, a...))
}

// DetailSuccess prints an indented check-marked line.
func (p *Printer) DetailSuccess(format string, a ...any) {
	p.green.Fprintln(p.out, "  ✓ "+fmt.Sprintf(format, a...))
}

// DetailFailure prints an indented cross-marked line.
func (p *Printer) DetailFailure(format string, a ...any) {
	p.red.Fprintln(p.out, "  ✗ "+fmt.Sprintf(format, a...))
}

// Blank prints an empty line.
func (p *Printer) Blank() {
	fmt.Fprintln(p.out)
}

// Banner prints a title framed by rules.
func (p *Printer) Banner(title string) {
	rule := strings.Repeat("=", RuleWidth)
	fmt.Fprintln(p.out, rule)
	p.bold.Fprintln(p.out, title)
	fmt.Fprintln(p.out, rule)
}

// Error prints a formatted error with explanation and suggestions to the
// error writer and returns an error carrying only the title, for cobra.
func (p *Printer) Error(title, explanation string, suggestions []string) error {
	p.red.Fprintf(p.errOut, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(p.errOut, "\n%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.errOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.errOut, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(p.errOut, "  %d. %s\n", i+1, suggestion)
		}
	}
	return fmt.Errorf("%s", title)
}
