package pipeline

import (
	"context"
	"fmt"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
)

// StateSink receives values for one measurement of one device.
// SetState must not block for long and reports its own failures.
type StateSink interface {
	SetState(value float64)
}

// SinkRegistry creates state sinks, announcing them to the remote side.
type SinkRegistry interface {
	Register(device config.DeviceConfig, key string, sensor config.SensorConfig) (StateSink, error)
}

// PublisherMetrics is notified of publisher outcomes. Optional.
type PublisherMetrics interface {
	RecordsDiscarded(n int)
	StateForwarded()
	UnitMismatch(key string)
}

type subscriber struct {
	sink         StateSink
	expectedUnit string
}

// Publisher forwards measurements whose unit matches configuration to
// their state sinks.
type Publisher struct {
	devices  []config.DeviceConfig
	registry SinkRegistry
	metrics  PublisherMetrics
	logger   Logger

	// subscribers is rebuilt by Prepare and read-only afterwards.
	subscribers map[ble.Address]map[string]subscriber
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Devices  []config.DeviceConfig
	Registry SinkRegistry
	Metrics  PublisherMetrics
	Logger   Logger
}

// NewPublisher creates a Publisher. Sinks are registered by Prepare.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: publisher requires a sink registry", ErrInvalidOptions)
	}
	p := &Publisher{
		devices:  opts.Devices,
		registry: opts.Registry,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	return p, nil
}

// Name implements Consumer.
func (p *Publisher) Name() string { return "publisher" }

// Prepare registers one sink per configured (device, key), then discards
// everything already queued.
//
// Returns:
//   - error: ErrSinkRegistration if any sink cannot be registered, or a
//     malformed device address
func (p *Publisher) Prepare(_ context.Context, backlog Backlog) error {
	subscribers := make(map[ble.Address]map[string]subscriber, len(p.devices))

	for _, device := range p.devices {
		addr, err := ble.ParseAddress(device.MACAddress)
		if err != nil {
			return fmt.Errorf("device %q: %w", device.ID, err)
		}

		byKey := make(map[string]subscriber, len(device.Sensor))
		for _, entry := range device.Sensor {
			sink, err := p.registry.Register(device, entry.Key, entry.Config)
			if err != nil {
				return fmt.Errorf("%w: %s/%s: %w", ErrSinkRegistration, device.ID, entry.Key, err)
			}
			byKey[entry.Key] = subscriber{sink: sink, expectedUnit: entry.Config.UnitOfMeasurement}
		}
		subscribers[addr] = byKey
	}
	p.subscribers = subscribers

	discarded := backlog.Flush()
	p.logger.Info("discarded queued records", "discarded", discarded)
	if p.metrics != nil {
		p.metrics.RecordsDiscarded(discarded)
	}
	return nil
}

// Consume implements Consumer. Fields without a sink (signal_strength
// always) are skipped; a unit mismatch is logged and the rest of the
// record is still processed.
func (p *Publisher) Consume(_ context.Context, rec ble.Record) error {
	byKey := p.subscribers[rec.Address]

	for _, field := range rec.Fields {
		sub, ok := byKey[field.Name]
		if !ok {
			continue
		}

		if field.Unit != sub.expectedUnit {
			p.logger.Error("unit mismatch",
				"address", rec.Address.String(),
				"key", field.Name,
				"value", field.Value,
				"unit", field.Unit,
				"expected_unit", sub.expectedUnit,
			)
			if p.metrics != nil {
				p.metrics.UnitMismatch(field.Name)
			}
			continue
		}

		sub.sink.SetState(field.Value)
		if p.metrics != nil {
			p.metrics.StateForwarded()
		}
		p.logger.Debug("set state",
			"address", rec.Address.String(),
			"key", field.Name,
			"value", field.Value,
			"unit", field.Unit,
		)
	}
	return nil
}
