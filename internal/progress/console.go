// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	colorGood  = lipgloss.Color("#4ECDC4")
	colorAlert = lipgloss.Color("#FF6B6B")
	colorWarn  = lipgloss.Color("#FFE66D")
	colorMuted = lipgloss.Color("#6c757d")
)

const defaultWidth = 60

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	// Live redraws a single progress line in place. Only sensible on a terminal.
	Live bool
	// Width of rules and the progress bar; zero means 60 columns.
	Width int
}

type consoleStyles struct {
	title   lipgloss.Style
	test    lipgloss.Style
	muted   lipgloss.Style
	bad     lipgloss.Style
	good    lipgloss.Style
	panel   lipgloss.Style
	counter lipgloss.Style
}

// Console renders events as terminal output: a live bar, per-test lines,
// ERROR/FAILURE sections and a summary panel.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	opts   ConsoleOptions
	styles consoleStyles
	bar    bar.Model

	barShown bool
	last     Progress
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer, opts ConsoleOptions) *Console {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:  out,
		opts: opts,
		styles: consoleStyles{
			title:   r.NewStyle().Bold(true),
			test:    r.NewStyle().Foreground(colorWarn),
			muted:   r.NewStyle().Foreground(colorMuted),
			bad:     r.NewStyle().Foreground(colorAlert).Bold(true),
			good:    r.NewStyle().Foreground(colorGood).Bold(true),
			panel:   r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
			counter: r.NewStyle().Foreground(colorMuted),
		},
		bar: bar.New(
			bar.WithDefaultGradient(),
			bar.WithWidth(opts.Width/2),
			bar.WithoutPercentage(),
		),
	}
}

// Emit renders e.
func (c *Console) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := e.(type) {
	case TaskStarted:
		c.clearBar()
		line := c.styles.title.Render(e.Name)
		if e.Total > 0 {
			line += c.styles.muted.Render(fmt.Sprintf(" (%d)", e.Total))
		}
		c.println(line)
		c.last = Progress{Total: e.Total}
		c.drawBar()
	case Progress:
		c.last = e
		c.drawBar()
	case Log:
		c.clearBar()
		if e.Test != "" {
			line := c.styles.test.Render(e.Test)
			if e.Class != "" {
				line += " from " + c.styles.test.Render(e.Class)
			}
			c.println(line)
		} else {
			c.println(e.Line)
		}
		c.drawBar()
	case RunFinished:
		c.clearBar()
		c.renderSummary(e)
	}
}

func (c *Console) renderSummary(e RunFinished) {
	for _, d := range e.Errors {
		c.renderDiagnostic("ERROR", d)
	}
	for _, d := range e.Failures {
		c.renderDiagnostic("FAILURE", d)
	}
	if e.Aborted != "" {
		c.println(c.styles.muted.Render("Run stopped early: " + e.Aborted))
	}

	if e.Successful() {
		body := c.styles.good.Render("All tests passed!")
		if e.Escalated {
			body += "\n" + c.styles.muted.Render("Previously failing tests fixed; full suite confirmed.")
		}
		c.println(c.styles.panel.BorderForeground(colorGood).Render(
			c.styles.title.Render("Success") + "\n" + body,
		))
		return
	}

	body := c.styles.bad.Render(fmt.Sprintf("%d Errors.", len(e.Errors))) + "\n" +
		c.styles.bad.Render(fmt.Sprintf("%d Failures.", len(e.Failures)))
	c.println(c.styles.panel.BorderForeground(colorAlert).Render(
		c.styles.title.Render("Failures") + "\n" + body,
	))
}

func (c *Console) renderDiagnostic(label string, d Diagnostic) {
	c.println(c.rule(c.styles.bad.Render(label), len(label)))
	c.println(c.styles.test.Render(d.ID))
	if text := strings.TrimRight(d.Text, "\n"); text != "" {
		c.println(text)
	}
	c.println(c.rule("", 0))
}

// rule draws a horizontal line with an optional centred label of visible width n.
func (c *Console) rule(label string, n int) string {
	if label == "" {
		return c.styles.muted.Render(strings.Repeat("─", c.opts.Width))
	}
	side := (c.opts.Width - n - 2) / 2
	if side < 3 {
		side = 3
	}
	line := c.styles.muted.Render(strings.Repeat("─", side))
	return line + " " + label + " " + line
}

func (c *Console) drawBar() {
	if !c.opts.Live || c.last.Total <= 0 {
		return
	}
	pct := float64(c.last.Completed) / float64(c.last.Total)
	counter := fmt.Sprintf(" %d/%d %s", c.last.Completed, c.last.Total, FormatElapsed(c.last.Elapsed))
	_, _ = fmt.Fprint(c.out, "\r\x1b[2K"+c.bar.ViewAs(pct)+c.styles.counter.Render(counter))
	c.barShown = true
}

func (c *Console) clearBar() {
	if !c.barShown {
		return
	}
	_, _ = fmt.Fprint(c.out, "\r\x1b[2K")
	c.barShown = false
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}

// FormatElapsed renders d as H:MM:SS.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
