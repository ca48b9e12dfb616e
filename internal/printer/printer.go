// Package printer writes the canary's console output: progress and
// successes to stdout, failures to stderr.
package printer

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorProgress = lipgloss.Color("#20B9B4")
	colorSuccess  = lipgloss.Color("#2CD7C7")
	colorError    = lipgloss.Color("#E74C3C")
)

// Printer renders console lines. Each writer gets its own renderer, so a
// writer that is not a terminal receives plain text.
type Printer struct {
	out io.Writer
	err io.Writer

	progress lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
}

// New creates a printer writing to stdout and stderr.
func New(stdout, stderr io.Writer) *Printer {
	outR := lipgloss.NewRenderer(stdout)
	errR := lipgloss.NewRenderer(stderr)
	return &Printer{
		out:      stdout,
		err:      stderr,
		progress: outR.NewStyle().Foreground(colorProgress),
		success:  outR.NewStyle().Foreground(colorSuccess).Bold(true),
		failure:  errR.NewStyle().Foreground(colorError).Bold(true),
	}
}

// Progress prints a step announcement such as "Cloning <repo>".
func (p *Printer) Progress(format string, args ...any) {
	fmt.Fprintln(p.out, p.progress.Render(fmt.Sprintf(format, args...)))
}

// Success prints a success line to stdout.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.out, p.success.Render(fmt.Sprintf(format, args...)))
}

// Failure prints a styled headline to stderr followed by the unstyled
// output it refers to, if any.
func (p *Printer) Failure(headline, output string) {
	fmt.Fprintln(p.err, p.failure.Render(headline))
	if output == "" {
		return
	}
	fmt.Fprint(p.err, output)
	if !strings.HasSuffix(output, "\n") {
		fmt.Fprintln(p.err)
	}
}

// Separator prints the blank line that follows each project.
func (p *Printer) Separator() {
	fmt.Fprintln(p.out)
}
