package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide JSON logger. Every record that carries a
// request context gets trace and span ids stamped on it so log lines join up
// with traces in the backend.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	handler = NewTraceHandler(handler)

	return slog.New(handler)
}
