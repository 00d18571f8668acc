package ble

import "context"

// Source delivers raw advertisements from a scanning session.
//
// Scan blocks until ctx is cancelled, the underlying scanner fails, or
// handle returns an error. An error from handle stops the scan and is
// returned unchanged.
type Source interface {
	Scan(ctx context.Context, handle func(Advertisement) error) error
}

// Detector recognises sensor frames inside an advertisement payload.
type Detector interface {
	Detect(p Payload) (Frame, bool)
}

// Decoder turns a recognised frame into named values.
// bindKey is nil when the device has none configured.
type Decoder interface {
	Decode(f Frame, addr Address, bindKey []byte) (Decoded, error)
}

// RecordSink receives records in production order.
type RecordSink interface {
	Push(rec Record)
}

// Skip reasons reported to an Observer.
const (
	SkipUnknownDevice = "unknown_device"
	SkipUnrecognised  = "unrecognised_frame"
	SkipDecodeFailed  = "decode_failed"
)

// Observer is notified of producer activity. Calls are made from the
// producer goroutine and must not block.
type Observer interface {
	// RecordEnqueued is called after rec has been pushed to the sink.
	RecordEnqueued(rec Record, rssi int)

	// AdvertSkipped is called when an advertisement is dropped.
	AdvertSkipped(reason string)

	// DecodeFailed is called for every decoder error, whatever the policy.
	DecodeFailed(addr Address, err error)
}

// NopObserver implements Observer with no-ops. Embed it to implement a
// subset of the interface.
type NopObserver struct{}

func (NopObserver) RecordEnqueued(Record, int)  {}
func (NopObserver) AdvertSkipped(string)        {}
func (NopObserver) DecodeFailed(Address, error) {}

// Observers fans every notification out to each member in order.
type Observers []Observer

func (o Observers) RecordEnqueued(rec Record, rssi int) {
	for _, obs := range o {
		obs.RecordEnqueued(rec, rssi)
	}
}

func (o Observers) AdvertSkipped(reason string) {
	for _, obs := range o {
		obs.AdvertSkipped(reason)
	}
}

func (o Observers) DecodeFailed(addr Address, err error) {
	for _, obs := range o {
		obs.DecodeFailed(addr, err)
	}
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
