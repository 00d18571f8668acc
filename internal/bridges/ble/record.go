package ble

import (
	"time"
)

// SignalStrengthField is the field name carrying the received signal
// strength. Every Record starts with it.
const SignalStrengthField = "signal_strength"

// SignalStrengthUnit is the unit reported for SignalStrengthField.
const SignalStrengthUnit = "dBm"

// UnitSuffix names the companion field holding a measurement's unit.
const UnitSuffix = "_unit"

// ServiceData is one service-data element of an advertisement.
type ServiceData struct {
	// UUID is the 16-bit service UUID (e.g., 0x181A environmental sensing).
	UUID uint16

	// Data is the raw service data following the UUID.
	Data []byte
}

// Payload is the part of an advertisement a Detector inspects.
type Payload struct {
	LocalName   string
	ServiceData []ServiceData
}

// Advertisement is one observed broadcast from the scanning source.
type Advertisement struct {
	// Address is the sender address as reported by the source
	// (e.g., "A4:C1:38:7A:A5:7E").
	Address string

	// Payload carries the advertisement contents.
	Payload Payload

	// RSSI is the received signal strength in dBm.
	RSSI int

	// ObservedAt is when the source received the advertisement.
	ObservedAt time.Time
}

// Frame is a recognised sensor frame extracted from a Payload.
type Frame struct {
	// Format labels the frame layout (e.g., "custom", "atc1441").
	Format string

	// Data is the raw frame bytes handed to the decoder.
	Data []byte
}

// Decoded is the decoder's result: a lookup table from canonical field
// name to value, plus a companion table of units. Units[name] is the value
// the decoder would report under "<name>_unit".
type Decoded struct {
	Format string
	Values map[string]float64
	Units  map[string]string
}

// Lookup returns the value and unit for an exact field name.
// The unit is empty when the decoder reports none.
func (d Decoded) Lookup(name string) (value float64, unit string, ok bool) {
	value, ok = d.Values[name]
	if !ok {
		return 0, "", false
	}
	return value, d.Units[name], true
}

// Measurement is one named value in a Record.
type Measurement struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	// Unit is empty when the decoder reported no unit.
	Unit string `json:"unit,omitempty"`
}

// Record is one decoded advertisement from a configured sensor.
//
// Records are created by the Producer, delivered in order through the
// queue, and consumed exactly once.
type Record struct {
	// Sequence increases by one per enqueued record and starts at zero for
	// each Producer.
	Sequence uint64 `json:"sequence"`

	// Address is the sensor that sent the advertisement.
	Address Address `json:"address"`

	// Format is the frame layout the advertisement was decoded from.
	Format string `json:"format"`

	// ObservedAt is when the advertisement was received.
	ObservedAt time.Time `json:"observed_at"`

	// Fields always starts with signal_strength, followed by the device's
	// configured keys that were present in the frame, in configuration order.
	Fields []Measurement `json:"fields"`
}

// Field returns the measurement with the given name.
func (r Record) Field(name string) (Measurement, bool) {
	for _, m := range r.Fields {
		if m.Name == name {
			return m, true
		}
	}
	return Measurement{}, false
}

// FieldMap returns the fields keyed by name, for structured logging.
func (r Record) FieldMap() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for _, m := range r.Fields {
		if m.Unit == "" {
			out[m.Name] = m.Value
			continue
		}
		out[m.Name] = []any{m.Value, m.Unit}
	}
	return out
}
