// Package logging builds the slog loggers used by the command line.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Format selects the handler used for log output
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// ParseLevel maps a level name to a slog level. Unknown names are an error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (must be debug, info, warn or error)", name)
}

// New constructs a logger writing to w in the requested format
func New(format Format, w io.Writer, level slog.Leveler) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case FormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case FormatPretty:
		return slog.New(newPrettyHandler(w, level)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (must be text, json or pretty)", format)
}

// styles colour the level label and dim the attributes. Colours are only
// emitted when the writer is a terminal.
type styles struct {
	levels map[slog.Level]lipgloss.Style
	attrs  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		levels: map[slog.Level]lipgloss.Style{
			slog.LevelDebug: r.NewStyle().Foreground(lipgloss.Color("8")),
			slog.LevelInfo:  r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
			slog.LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
			slog.LevelError: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		},
		attrs: r.NewStyle().Faint(true),
	}
}

func (s styles) level(l slog.Level) lipgloss.Style {
	switch {
	case l >= slog.LevelError:
		return s.levels[slog.LevelError]
	case l >= slog.LevelWarn:
		return s.levels[slog.LevelWarn]
	case l >= slog.LevelInfo:
		return s.levels[slog.LevelInfo]
	}
	return s.levels[slog.LevelDebug]
}

// prettyHandler renders one terse line per record for interactive use
type prettyHandler struct {
	writer io.Writer
	level  slog.Leveler
	styles styles

	mu     *sync.Mutex
	prefix string // attrs from WithAttrs, already rendered
	groups []string
}

func newPrettyHandler(w io.Writer, level slog.Leveler) *prettyHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &prettyHandler{
		writer: w,
		level:  level,
		styles: newStyles(w),
		mu:     &sync.Mutex{},
	}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var attrs strings.Builder
	attrs.WriteString(h.prefix)
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&attrs, h.groups, attr)
		return true
	})

	var line strings.Builder
	line.WriteString(timestamp.Format(time.TimeOnly))
	line.WriteByte(' ')
	line.WriteString(h.styles.level(record.Level).Render(fmt.Sprintf("%-5s", record.Level.String())))
	line.WriteByte(' ')
	line.WriteString(record.Message)
	if attrs.Len() > 0 {
		line.WriteString(h.styles.attrs.Render(attrs.String()))
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := io.WriteString(h.writer, line.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, attr := range attrs {
		appendAttr(&b, h.groups, attr)
	}
	clone := *h
	clone.prefix = b.String()
	return &clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func appendAttr(b *strings.Builder, groups []string, attr slog.Attr) {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), groups...), attr.Key)
		for _, a := range value.Group() {
			appendAttr(b, nested, a)
		}
		return
	}
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(formatValue(value))
}

func formatValue(value slog.Value) string {
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if s == "" || strings.ContainsAny(s, " =\"") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return value.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok && err != nil {
			return strconv.Quote(err.Error())
		}
		return fmt.Sprint(value.Any())
	}
	return value.String()
}
