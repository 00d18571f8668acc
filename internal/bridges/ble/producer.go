package ble

import (
	"context"
	"errors"
	"fmt"
)

// DecodePolicy selects what a Producer does when a frame fails to decode.
type DecodePolicy int

const (
	// DecodeRestart ends the scanning session with ErrDecodeFailed so the
	// supervisor restarts it.
	DecodeRestart DecodePolicy = iota

	// DecodeSkip logs the failure and drops the advertisement.
	DecodeSkip
)

// ProducerOptions configures a Producer.
type ProducerOptions struct {
	Source   Source
	Detector Detector
	Decoder  Decoder
	Devices  *DeviceTable
	Sink     RecordSink

	// Observer is optional.
	Observer Observer

	// Logger is optional.
	Logger Logger

	DecodePolicy DecodePolicy
}

// Producer runs one scanning session and turns advertisements from
// configured devices into Records.
//
// A Producer is single-use: its sequence counter starts at zero and a
// restarted session must be given a new Producer.
type Producer struct {
	source   Source
	detector Detector
	decoder  Decoder
	devices  *DeviceTable
	sink     RecordSink
	observer Observer
	logger   Logger
	policy   DecodePolicy

	sequence uint64
}

// NewProducer validates opts and creates a Producer.
func NewProducer(opts ProducerOptions) (*Producer, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("ble: producer requires a source")
	case opts.Detector == nil:
		return nil, errors.New("ble: producer requires a detector")
	case opts.Decoder == nil:
		return nil, errors.New("ble: producer requires a decoder")
	case opts.Devices == nil:
		return nil, errors.New("ble: producer requires a device table")
	case opts.Sink == nil:
		return nil, errors.New("ble: producer requires a sink")
	}

	p := &Producer{
		source:   opts.Source,
		detector: opts.Detector,
		decoder:  opts.Decoder,
		devices:  opts.Devices,
		sink:     opts.Sink,
		observer: opts.Observer,
		logger:   opts.Logger,
		policy:   opts.DecodePolicy,
	}
	if p.observer == nil {
		p.observer = NopObserver{}
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	return p, nil
}

// Run scans until ctx is cancelled or the session fails.
//
// Returns:
//   - error: ctx.Err() on cancellation, ErrScanStopped if the source ended
//     on its own, otherwise the error that ended the session
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("scan session started", "devices", p.devices.Len())

	err := p.source.Scan(ctx, p.handle)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}
	return ErrScanStopped
}

// Produced returns how many records this session has enqueued.
func (p *Producer) Produced() uint64 {
	return p.sequence
}

func (p *Producer) handle(adv Advertisement) error {
	addr, err := ParseAddress(adv.Address)
	if err != nil {
		return fmt.Errorf("advertisement address: %w", err)
	}

	device, ok := p.devices.Lookup(addr)
	if !ok {
		p.observer.AdvertSkipped(SkipUnknownDevice)
		return nil
	}

	frame, ok := p.detector.Detect(adv.Payload)
	if !ok {
		p.observer.AdvertSkipped(SkipUnrecognised)
		return nil
	}

	decoded, err := p.decoder.Decode(frame, addr, device.BindKey)
	if err != nil {
		p.observer.DecodeFailed(addr, err)
		if p.policy == DecodeSkip {
			p.observer.AdvertSkipped(SkipDecodeFailed)
			p.logger.Warn("dropping undecodable advertisement",
				"address", addr.String(),
				"format", frame.Format,
				"error", err,
			)
			return nil
		}
		return fmt.Errorf("%w: %s %s: %w", ErrDecodeFailed, addr, frame.Format, err)
	}

	rec := Record{
		Sequence:   p.sequence,
		Address:    addr,
		Format:     frame.Format,
		ObservedAt: adv.ObservedAt,
		Fields:     buildFields(adv.RSSI, decoded, device.Keys),
	}
	p.sequence++

	p.sink.Push(rec)
	p.observer.RecordEnqueued(rec, adv.RSSI)
	return nil
}

// buildFields returns signal_strength followed by every configured key the
// decoder reported, in key order.
func buildFields(rssi int, decoded Decoded, keys []string) []Measurement {
	fields := make([]Measurement, 0, len(keys)+1)
	fields = append(fields, Measurement{
		Name:  SignalStrengthField,
		Value: float64(rssi),
		Unit:  SignalStrengthUnit,
	})

	for _, key := range keys {
		value, unit, ok := decoded.Lookup(key)
		if !ok {
			continue
		}
		fields = append(fields, Measurement{Name: key, Value: value, Unit: unit})
	}
	return fields
}
