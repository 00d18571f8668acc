package atcmi

import (
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

// Service UUIDs carrying sensor frames.
const (
	UUIDEnvironmentalSensing uint16 = 0x181A
	UUIDBTHome               uint16 = 0xFCD2
)

// Frame formats.
const (
	FormatATC1441    = "atc1441"
	FormatATC1441Enc = "atc1441_enc"
	FormatCustom     = "custom"
	FormatCustomEnc  = "custom_enc"
	FormatBTHomeV2   = "bthome_v2"
)

// Frame lengths of the fixed-size 0x181A formats.
const (
	lenATC1441    = 13
	lenATC1441Enc = 8
	lenCustom     = 15
	lenCustomEnc  = 11
)

// Canonical field names.
const (
	FieldTemperature  = "temperature"
	FieldHumidity     = "humidity"
	FieldBatteryLevel = "battery_level"
	FieldBatteryV     = "battery_v"
	FieldPressure     = "pressure"
	FieldIlluminance  = "illuminance"
	FieldCounter      = "counter"
	FieldFlags        = "flags"
)

// Units reported alongside the canonical fields.
const (
	UnitCelsius = "°C"
	UnitPercent = "%"
	UnitVolt    = "V"
	UnitHPa     = "hPa"
	UnitLux     = "lx"
)

// Codec detects and decodes ATC/pvvx and BTHome v2 frames.
// The zero value is ready to use and safe for concurrent use.
type Codec struct{}

// New returns a Codec.
func New() Codec {
	return Codec{}
}

// Detect implements ble.Detector. The first recognised service-data
// element wins; advertisements without one (e.g., scan responses carrying
// only a name) are not recognised.
func (Codec) Detect(p ble.Payload) (ble.Frame, bool) {
	for _, sd := range p.ServiceData {
		format, ok := detectFormat(sd)
		if !ok {
			continue
		}
		return ble.Frame{Format: format, Data: append([]byte(nil), sd.Data...)}, true
	}
	return ble.Frame{}, false
}

func detectFormat(sd ble.ServiceData) (string, bool) {
	switch sd.UUID {
	case UUIDEnvironmentalSensing:
		switch len(sd.Data) {
		case lenATC1441:
			return FormatATC1441, true
		case lenATC1441Enc:
			return FormatATC1441Enc, true
		case lenCustom:
			return FormatCustom, true
		case lenCustomEnc:
			return FormatCustomEnc, true
		}
	case UUIDBTHome:
		if len(sd.Data) > 0 {
			return FormatBTHomeV2, true
		}
	}
	return "", false
}

// Decode implements ble.Decoder.
//
// Parameters:
//   - f: Frame returned by Detect
//   - addr: Sender address, used in encryption nonces
//   - bindKey: 16-byte AES key, or nil when the device has none
//
// Returns:
//   - ble.Decoded: Values and units keyed by canonical field name
//   - error: ErrUnsupportedFormat, ErrFrameTooShort, ErrMissingBindKey
//     or ErrDecryptFailed
func (Codec) Decode(f ble.Frame, addr ble.Address, bindKey []byte) (ble.Decoded, error) {
	out := ble.Decoded{
		Format: f.Format,
		Values: make(map[string]float64, 8),
		Units:  make(map[string]string, 8),
	}

	var err error
	switch f.Format {
	case FormatATC1441:
		err = decodeATC1441(f.Data, out)
	case FormatATC1441Enc:
		err = decodeATC1441Enc(f.Data, addr, bindKey, out)
	case FormatCustom:
		err = decodeCustom(f.Data, out)
	case FormatCustomEnc:
		err = decodeCustomEnc(f.Data, addr, bindKey, out)
	case FormatBTHomeV2:
		err = decodeBTHome(f.Data, addr, bindKey, out)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, f.Format)
	}
	if err != nil {
		return ble.Decoded{}, err
	}
	return out, nil
}

func set(d ble.Decoded, name string, value float64, unit string) {
	d.Values[name] = value
	if unit != "" {
		d.Units[name] = unit
	}
}

func checkLen(data []byte, want int, format string) error {
	if len(data) < want {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrFrameTooShort, format, want, len(data))
	}
	return nil
}

// decodeATC1441 decodes the original ATC1441 layout:
// mac[6] temp[2 BE, 0.1] humi[1] batt%[1] battmV[2 BE] counter[1].
func decodeATC1441(data []byte, d ble.Decoded) error {
	if err := checkLen(data, lenATC1441, FormatATC1441); err != nil {
		return err
	}
	set(d, FieldTemperature, float64(int16(binary.BigEndian.Uint16(data[6:8])))/10, UnitCelsius)
	set(d, FieldHumidity, float64(data[8]), UnitPercent)
	set(d, FieldBatteryLevel, float64(data[9]), UnitPercent)
	set(d, FieldBatteryV, float64(binary.BigEndian.Uint16(data[10:12]))/1000, UnitVolt)
	set(d, FieldCounter, float64(data[12]), "")
	return nil
}

// decodeATC1441Enc decodes the pvvx encrypted short layout:
// counter[1] ciphertext[3] mic[4]. The plaintext is
// temp[1, 0.5 offset -40] humi[1, 0.5] trigger[bit 7] batt%[bits 0-6].
func decodeATC1441Enc(data []byte, addr ble.Address, bindKey []byte, d ble.Decoded) error {
	if err := checkLen(data, lenATC1441Enc, FormatATC1441Enc); err != nil {
		return err
	}
	if bindKey == nil {
		return ErrMissingBindKey
	}

	counter := data[0]
	plain, err := openCCM(bindKey, customEncNonce(addr, len(data), counter), data[1:], customEncAAD)
	if err != nil {
		return err
	}

	set(d, FieldTemperature, float64(plain[0])/2-40, UnitCelsius)
	set(d, FieldHumidity, float64(plain[1])/2, UnitPercent)
	set(d, FieldBatteryLevel, float64(plain[2]&0x7F), UnitPercent)
	set(d, FieldFlags, float64(plain[2]>>7), "")
	set(d, FieldCounter, float64(counter), "")
	return nil
}

// decodeCustom decodes the pvvx custom layout:
// mac[6 LE] temp[2 LE, 0.01] humi[2 LE, 0.01] battmV[2 LE] batt%[1]
// counter[1] flags[1].
func decodeCustom(data []byte, d ble.Decoded) error {
	if err := checkLen(data, lenCustom, FormatCustom); err != nil {
		return err
	}
	set(d, FieldTemperature, float64(int16(binary.LittleEndian.Uint16(data[6:8])))/100, UnitCelsius)
	set(d, FieldHumidity, float64(binary.LittleEndian.Uint16(data[8:10]))/100, UnitPercent)
	set(d, FieldBatteryV, float64(binary.LittleEndian.Uint16(data[10:12]))/1000, UnitVolt)
	set(d, FieldBatteryLevel, float64(data[12]), UnitPercent)
	set(d, FieldCounter, float64(data[13]), "")
	set(d, FieldFlags, float64(data[14]), "")
	return nil
}

// decodeCustomEnc decodes the pvvx encrypted custom layout:
// counter[1] ciphertext[6] mic[4]. The plaintext is
// temp[2 LE, 0.01] humi[2 LE, 0.01] batt%[1] flags[1].
func decodeCustomEnc(data []byte, addr ble.Address, bindKey []byte, d ble.Decoded) error {
	if err := checkLen(data, lenCustomEnc, FormatCustomEnc); err != nil {
		return err
	}
	if bindKey == nil {
		return ErrMissingBindKey
	}

	counter := data[0]
	plain, err := openCCM(bindKey, customEncNonce(addr, len(data), counter), data[1:], customEncAAD)
	if err != nil {
		return err
	}

	set(d, FieldTemperature, float64(int16(binary.LittleEndian.Uint16(plain[0:2])))/100, UnitCelsius)
	set(d, FieldHumidity, float64(binary.LittleEndian.Uint16(plain[2:4]))/100, UnitPercent)
	set(d, FieldBatteryLevel, float64(plain[4]), UnitPercent)
	set(d, FieldFlags, float64(plain[5]), "")
	set(d, FieldCounter, float64(counter), "")
	return nil
}
