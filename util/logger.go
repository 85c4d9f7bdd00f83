package util

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogger 设置默认的slog，format为json时输出json，否则输出文本
func SetupLogger(level string, format string) {
	slog.SetDefault(slog.New(NewLogHandler(os.Stdout, level, format)))
}

func NewLogHandler(w io.Writer, level string, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
