package app

import (
	"io"
	"log/slog"
)

// logLevels maps the -log-level values the CLI accepts onto slog levels.
// An unknown or empty value falls through to the zero level, which is info.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the invocation's isolated logger from the validated
// config. The process-wide slog default is left alone so concurrent App
// values never share handler state.
func (c *Config) newLogger(outW io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevels[c.LogLevel]}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
