package logging

import (
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Free-text attributes are cut to this many runes. Questions and résumé
// excerpts can be long and may carry personal data.
const maxTextAttrRunes = 200

var textAttrKeys = map[string]struct{}{
	"question": {},
	"answer":   {},
	"text":     {},
	"excerpt":  {},
}

type Options struct {
	Level  string
	Format string // "json" (default) or "text"
}

// New builds the service logger. The MCP server passes stderr because stdout
// carries the protocol.
func New(w io.Writer, service string, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: truncateTextAttrs,
	}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler).With("service", service)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func truncateTextAttrs(_ []string, a slog.Attr) slog.Attr {
	if _, ok := textAttrKeys[a.Key]; !ok || a.Value.Kind() != slog.KindString {
		return a
	}
	s := a.Value.String()
	if utf8.RuneCountInString(s) <= maxTextAttrRunes {
		return a
	}
	runes := []rune(s)
	return slog.String(a.Key, string(runes[:maxTextAttrRunes])+"…")
}
