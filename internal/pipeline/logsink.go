package pipeline

import (
	"context"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

// LogConsumer writes every record to the log. It is the consumer used
// when publishing is disabled.
type LogConsumer struct {
	logger Logger
}

// NewLogConsumer creates a LogConsumer.
func NewLogConsumer(logger Logger) *LogConsumer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogConsumer{logger: logger}
}

// Name implements Consumer.
func (c *LogConsumer) Name() string { return "log" }

// Prepare implements Consumer. The backlog is kept.
func (c *LogConsumer) Prepare(context.Context, Backlog) error { return nil }

// Consume implements Consumer.
func (c *LogConsumer) Consume(_ context.Context, rec ble.Record) error {
	c.logger.Info("record",
		"sequence", rec.Sequence,
		"address", rec.Address.String(),
		"format", rec.Format,
		"fields", rec.FieldMap(),
	)
	return nil
}
