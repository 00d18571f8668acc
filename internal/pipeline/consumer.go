package pipeline

import (
	"context"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

// Backlog is the part of the delivery queue a consumer may clear while
// preparing.
type Backlog interface {
	Flush() int
}

// Consumer handles records popped from the delivery queue.
//
// Prepare runs once per consumer task start, before the first Pop.
// A Consume error fails the consumer task and triggers a restart.
type Consumer interface {
	Name() string
	Prepare(ctx context.Context, backlog Backlog) error
	Consume(ctx context.Context, rec ble.Record) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
