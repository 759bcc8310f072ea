package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ContextWithSignals creates a context that is cancelled when the
// application receives an interrupt or termination signal. This enables
// graceful shutdown: in-flight items finish, queued items are abandoned.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ensureDir creates a directory and its parents if missing.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
