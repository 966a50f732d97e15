package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	BgRed   = "\033[41m"
)

type RichLoggerOptions struct {
	Output           io.Writer
	TimeFormat       string
	Level            slog.Leveler
	AddSource        bool
	EnableJSON       bool
	EnableColors     bool
	CompactJSON      bool
	EnableSeparators bool
}

func DefaultOptions() *RichLoggerOptions {
	return &RichLoggerOptions{
		Level:            slog.LevelInfo,
		EnableColors:     true,
		TimeFormat:       "2006-01-02 15:04:05.000",
		Output:           os.Stdout,
		CompactJSON:      true,
		EnableSeparators: false,
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// RichHandler renders records as coloured console lines or JSON objects.
// Handlers derived through WithAttrs/WithGroup share the output lock.
type RichHandler struct {
	opts   *RichLoggerOptions
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewRichHandler(opts *RichLoggerOptions) *RichHandler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}

	return &RichHandler{
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *RichHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *RichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	prefix := h.groupPrefix()
	for _, a := range attrs {
		a.Key = prefix + a.Key
		h2.attrs = append(h2.attrs, a)
	}
	return h2
}

func (h *RichHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *RichHandler) clone() *RichHandler {
	return &RichHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func (h *RichHandler) groupPrefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// collect flattens handler and record attributes into key/value pairs,
// expanding nested groups with dotted keys.
func (h *RichHandler) collect(record slog.Record) []slog.Attr {
	out := append([]slog.Attr(nil), h.attrs...)
	prefix := h.groupPrefix()
	record.Attrs(func(a slog.Attr) bool {
		out = appendFlat(out, prefix, a)
		return true
	})
	return out
}

func appendFlat(out []slog.Attr, prefix string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return out
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			out = appendFlat(out, p, ga)
		}
		return out
	}
	a.Key = prefix + a.Key
	return append(out, a)
}

func (h *RichHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := h.collect(record)

	var line string
	var err error
	if h.opts.EnableJSON {
		line, err = h.formatJSON(record, attrs)
	} else {
		line = h.formatText(record, attrs)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = fmt.Fprintln(h.opts.Output, line)
	return err
}

func (h *RichHandler) formatJSON(record slog.Record, attrs []slog.Attr) (string, error) {
	jsonMap := make(map[string]interface{}, len(attrs)+4)
	jsonMap["time"] = record.Time.Format(h.opts.TimeFormat)
	jsonMap["level"] = record.Level.String()
	if src := h.source(record); src != "" {
		jsonMap["source"] = src
	}
	jsonMap["msg"] = record.Message

	for _, a := range attrs {
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		jsonMap[a.Key] = v
	}

	var data []byte
	var err error
	if h.opts.CompactJSON {
		data, err = json.Marshal(jsonMap)
	} else {
		data, err = json.MarshalIndent(jsonMap, "", "  ")
	}
	return string(data), err
}

func (h *RichHandler) formatText(record slog.Record, attrs []slog.Attr) string {
	var b strings.Builder
	paint := func(code, s string) {
		if h.opts.EnableColors && code != "" {
			b.WriteString(code)
			b.WriteString(s)
			b.WriteString(Reset)
			return
		}
		b.WriteString(s)
	}

	levelColors := map[slog.Level]string{
		slog.LevelDebug: Cyan,
		slog.LevelInfo:  Green,
		slog.LevelWarn:  Yellow,
		slog.LevelError: Red,
	}

	paint(Blue, record.Time.Format(h.opts.TimeFormat))
	b.WriteString(" ")
	paint(levelColors[record.Level]+Bold, fmt.Sprintf("%-5s", strings.ToUpper(record.Level.String())))
	b.WriteString(" ")
	if src := h.source(record); src != "" {
		paint(Magenta, src)
		b.WriteString(" ")
	}
	b.WriteString(record.Message)

	for _, a := range attrs {
		b.WriteString(" ")
		paint(Dim, a.Key+"=")
		b.WriteString(formatValue(a.Value))
	}

	if h.opts.EnableSeparators {
		b.WriteString("\n")
		paint(Blue, strings.Repeat("─", 80))
	}
	return b.String()
}

func (h *RichHandler) source(record slog.Record) string {
	if !h.opts.AddSource || record.PC == 0 {
		return ""
	}
	fs := runtime.CallersFrames([]uintptr{record.PC})
	f, _ := fs.Next()
	file := f.File
	if i := strings.LastIndex(file, "/"); i >= 0 {
		file = file[i+1:]
	}
	return fmt.Sprintf("%s:%d", file, f.Line)
}

func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && (s == "" || strings.ContainsAny(s, " \t\"=")) {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func NewRichLogger(opts *RichLoggerOptions) *slog.Logger {
	return slog.New(NewRichHandler(opts))
}
