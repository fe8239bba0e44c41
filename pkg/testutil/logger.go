package testutil

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that drops everything. Use in tests where
// log output is noise.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
