package mipcache

import (
	"log/slog"

	"github.com/gogpu/mipcache/internal/logging"
)

// SetLogger configures the logger for mipcache and all its sub-packages.
// By default, mipcache produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by mipcache:
//   - [slog.LevelDebug]: task start and finish, level eviction, texture uploads
//   - [slog.LevelInfo]: cache lifecycle (created, closed)
//   - [slog.LevelWarn]: non-fatal issues (failed loads, upload errors, disk cache writes)
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	mipcache.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by mipcache.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
