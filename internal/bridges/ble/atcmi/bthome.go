package atcmi

import (
	"fmt"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

// BTHome device information byte.
const (
	bthomeEncryptedBit = 0x01
	bthomeVersionShift = 5
	bthomeVersion      = 2
)

// bthomeObject describes one BTHome v2 object id.
type bthomeObject struct {
	name   string
	size   int
	signed bool
	div    float64
	unit   string
}

// bthomeObjects lists the fixed-size BTHome v2 object ids. Entries
// without a name are sized so decoding can step over them; their values
// are not reported. An id missing here ends decoding because its length
// is unknown.
var bthomeObjects = map[byte]bthomeObject{
	0x00: {name: FieldCounter, size: 1, div: 1},
	0x01: {name: FieldBatteryLevel, size: 1, div: 1, unit: UnitPercent},
	0x02: {name: FieldTemperature, size: 2, signed: true, div: 100, unit: UnitCelsius},
	0x03: {name: FieldHumidity, size: 2, div: 100, unit: UnitPercent},
	0x04: {name: FieldPressure, size: 3, div: 100, unit: UnitHPa},
	0x05: {name: FieldIlluminance, size: 3, div: 100, unit: UnitLux},
	0x06: {size: 2},               // mass kg
	0x07: {size: 2},               // mass lb
	0x08: {size: 2, signed: true}, // dew point
	0x09: {size: 1},               // count
	0x0A: {size: 3},               // energy
	0x0B: {size: 3},               // power
	0x0C: {name: FieldBatteryV, size: 2, div: 1000, unit: UnitVolt},
	0x0D: {size: 2}, // pm2.5
	0x0E: {size: 2}, // pm10
	0x12: {size: 2}, // co2
	0x13: {size: 2}, // tvoc
	0x14: {size: 2}, // moisture
	0x2E: {name: FieldHumidity, size: 1, div: 1, unit: UnitPercent},
	0x2F: {size: 1},               // moisture
	0x3A: {size: 1},               // button event
	0x3C: {size: 2},               // dimmer event
	0x3D: {size: 2},               // count
	0x3E: {size: 4},               // count
	0x3F: {size: 2, signed: true}, // rotation
	0x40: {size: 2},               // distance mm
	0x41: {size: 2},               // distance m
	0x42: {size: 3},               // duration
	0x43: {size: 2},               // current
	0x44: {size: 2},               // speed
	0x45: {name: FieldTemperature, size: 2, signed: true, div: 10, unit: UnitCelsius},
	0x46: {size: 1}, // uv index
	0x47: {size: 2}, // volume
	0x48: {size: 2}, // volume ml
	0x49: {size: 2}, // volume flow
	0x4A: {size: 2}, // voltage
	0x4B: {size: 3}, // gas
	0x4C: {size: 4}, // gas
	0x4D: {size: 4}, // energy
	0x4E: {size: 4}, // volume
	0x4F: {size: 4}, // water
	0x50: {size: 4}, // timestamp
	0x51: {size: 2}, // acceleration
	0x52: {size: 2}, // gyroscope
	0x57: {name: FieldTemperature, size: 1, signed: true, div: 1, unit: UnitCelsius},
	0x58: {size: 1, signed: true}, // temperature 0.35
	0x59: {size: 1, signed: true}, // count
	0x5A: {size: 2, signed: true}, // count
	0x5B: {size: 4, signed: true}, // count
	0x5C: {size: 4, signed: true}, // power
	0x5D: {size: 2, signed: true}, // current
	0x5E: {size: 2},               // direction
	0x5F: {size: 2},               // precipitation
	0x60: {size: 1},               // channel
	0x61: {size: 2},               // rotational speed
	0xF0: {size: 2},               // device type id
	0xF1: {size: 4},               // firmware version
	0xF2: {size: 3},               // firmware version
}

func init() {
	// Binary sensors 0x0F-0x2D are one byte each; 0x2E is humidity.
	for id := byte(0x0F); id <= 0x2D; id++ {
		if _, ok := bthomeObjects[id]; !ok {
			bthomeObjects[id] = bthomeObject{size: 1}
		}
	}
}

// decodeBTHome decodes a BTHome v2 service-data frame:
// info[1] objects... and, when encrypted, counter[4] mic[4] after the
// encrypted objects.
func decodeBTHome(data []byte, addr ble.Address, bindKey []byte, d ble.Decoded) error {
	if err := checkLen(data, 1, FormatBTHomeV2); err != nil {
		return err
	}

	info := data[0]
	if version := info >> bthomeVersionShift; version != bthomeVersion {
		return fmt.Errorf("%w: bthome version %d", ErrUnsupportedFormat, version)
	}

	objects := data[1:]
	if info&bthomeEncryptedBit != 0 {
		if err := checkLen(data, 1+4+micLen, FormatBTHomeV2); err != nil {
			return err
		}
		if bindKey == nil {
			return ErrMissingBindKey
		}

		n := len(data)
		counter := data[n-4-micLen : n-micLen]
		sealed := make([]byte, 0, n-1-4)
		sealed = append(sealed, data[1:n-4-micLen]...)
		sealed = append(sealed, data[n-micLen:]...)

		plain, err := openCCM(bindKey, bthomeNonce(addr, info, counter), sealed, nil)
		if err != nil {
			return err
		}
		objects = plain
	}

	return decodeBTHomeObjects(objects, d)
}

func decodeBTHomeObjects(objects []byte, d ble.Decoded) error {
	for i := 0; i < len(objects); {
		id := objects[i]
		obj, ok := bthomeObjects[id]
		if !ok {
			return fmt.Errorf("%w: bthome object 0x%02X", ErrUnsupportedFormat, id)
		}
		i++
		if i+obj.size > len(objects) {
			return fmt.Errorf("%w: bthome object 0x%02X needs %d bytes", ErrFrameTooShort, id, obj.size)
		}

		if obj.name == "" {
			i += obj.size
			continue
		}

		raw := littleEndian(objects[i : i+obj.size])
		value := float64(raw)
		if obj.signed {
			value = float64(signExtend(raw, obj.size))
		}
		set(d, obj.name, value/obj.div, obj.unit)
		i += obj.size
	}
	return nil
}

func littleEndian(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func signExtend(v uint32, size int) int32 {
	shift := 32 - 8*size
	return int32(v<<shift) >> shift
}
