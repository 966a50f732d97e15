package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Console is the human-facing side of the logger: prefixed status lines,
// boxes, tables and a progress bar, all written to the same output.
type Console struct {
	Logger    *slog.Logger
	Out       io.Writer
	Colorized bool
}

func NewConsole(opts *RichLoggerOptions) *Console {
	if opts == nil {
		opts = DefaultOptions()
	}
	h := NewRichHandler(opts)

	return &Console{
		Logger:    slog.New(h),
		Out:       h.opts.Output,
		Colorized: opts.EnableColors,
	}
}

func (c *Console) paint(code, msg string) string {
	if !c.Colorized {
		return msg
	}
	return code + msg + Reset
}

func (c *Console) StartTimer(name string) *Timer {
	return &Timer{
		Name:      name,
		StartTime: time.Now(),
		Console:   c,
	}
}

func (c *Console) Success(format string, args ...interface{}) {
	c.Logger.Info(c.paint(Green+Bold, "✓ "+fmt.Sprintf(format, args...)))
}

func (c *Console) Info(format string, args ...interface{}) {
	c.Logger.Info(c.paint(Blue+Bold, "ℹ "+fmt.Sprintf(format, args...)))
}

func (c *Console) Log(format string, args ...interface{}) {
	c.Logger.Info(c.paint(White, fmt.Sprintf(format, args...)))
}

func (c *Console) Warn(format string, args ...interface{}) {
	c.Logger.Warn(c.paint(Yellow+Bold, "⚠ "+fmt.Sprintf(format, args...)))
}

func (c *Console) Error(format string, args ...interface{}) {
	c.Logger.Error(c.paint(Red+Bold, "✖ "+fmt.Sprintf(format, args...)))
}

func (c *Console) NewProgressBar(label string) *ProgressBar {
	return NewProgressBar(label, c.Out)
}

func (c *Console) NewTable(headers []string) *Table {
	return NewTable(headers, c.Out)
}

func (c *Console) Box(title string, content string) {
	lines := strings.Split(content, "\n")
	width := len(title)
	for _, line := range lines {
		width = max(width, len(line))
	}
	width += 4

	fmt.Fprintln(c.Out, "┌─"+title+"─"+strings.Repeat("─", width-len(title)-2)+"┐")
	for _, line := range lines {
		fmt.Fprintln(c.Out, "│ "+line+strings.Repeat(" ", width-len(line))+" │")
	}
	fmt.Fprintln(c.Out, "└"+strings.Repeat("─", width+2)+"┘")
}
