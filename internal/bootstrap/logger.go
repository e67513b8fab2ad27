package bootstrap

import (
	"io"
	"log/slog"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/w-h-a/grounded/config"
)

// NewLogger writes JSON records to a rotating file, or to fallback when no
// file is configured.
func NewLogger(cfg config.Log, fallback io.Writer) *slog.Logger {
	var w io.Writer = fallback

	if len(cfg.File) > 0 {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level(cfg.Level)}))
}

func level(s string) slog.Level {
	switch strings.ToLower(s) {
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
