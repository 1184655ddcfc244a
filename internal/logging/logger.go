package logging

import (
	"log/slog"
	"os"
)

// SetupLogger builds the process logger. Unknown levels fall back to info.
func SetupLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
