// Package pelog builds the provider engine's loggers on top of slog with
// zkr-go-common's error enrichment, so errors logged under an "err" key carry
// their stack traces.
package pelog

import (
	"log/slog"
	"os"

	zkrlog "github.com/zircuit-labs/zkr-go-common/log"
)

// New returns a logger writing JSON records to stdout.
func New() *slog.Logger {
	handler := zkrlog.NewLoggableErrorHandler(slog.NewJSONHandler(os.Stdout, nil))
	return slog.New(handler)
}

// NewWith returns a logger carrying the given context attributes.
func NewWith(args ...any) *slog.Logger {
	return New().With(args...)
}
