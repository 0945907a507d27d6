package logger

import "log/slog"

// Severity levels, spaced the way gcsfuse's logger spaces them so a custom
// TRACE level can sit below slog's built-in Debug.
const (
	LevelTrace    = slog.Level(-8)
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelWarn     = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.Level(12)
	levelOff      = slog.Level(16)
)

var severityNames = map[slog.Level]string{
	LevelTrace:    "TRACE",
	LevelDebug:    "DEBUG",
	LevelInfo:     "INFO",
	LevelWarn:     "WARNING",
	LevelError:    "ERROR",
	LevelCritical: "CRITICAL",
}

func severityName(l slog.Level) string {
	if name, ok := severityNames[l]; ok {
		return name
	}
	return l.String()
}

// ParseLevel maps a configuration string ("trace", "debug", "info",
// "warning", "error", "critical", "off") to its slog.Level,
// case-insensitively.
func ParseLevel(s string) slog.Level {
	switch asciiLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warning", "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "critical":
		return LevelCritical
	case "off":
		return levelOff
	default:
		return LevelInfo
	}
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
