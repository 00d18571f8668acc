package ble

import (
	"fmt"
	"slices"
)

// DeviceSpec describes one configured sensor before parsing.
type DeviceSpec struct {
	// ID is the configured device identifier (e.g., "living_room").
	ID string

	// Address is the hardware address string (e.g., "A4:C1:38:7A:A5:7E").
	Address string

	// BindKey is the optional 32-digit hex AES key for encrypted frames.
	BindKey string

	// Keys is the ordered set of measurement keys to forward.
	Keys []string
}

// Device is a parsed DeviceSpec.
type Device struct {
	ID      string
	Address Address
	BindKey []byte
	Keys    []string
}

// DeviceTable maps sensor addresses to their configuration.
// It is built once at startup and is read-only afterwards.
type DeviceTable struct {
	devices map[Address]*Device
	order   []Address
}

// NewDeviceTable parses every spec and indexes it by address.
//
// Returns:
//   - *DeviceTable: Table in configuration order
//   - error: ErrMalformedAddress, ErrInvalidBindKey or ErrDuplicateDevice
func NewDeviceTable(specs []DeviceSpec) (*DeviceTable, error) {
	t := &DeviceTable{
		devices: make(map[Address]*Device, len(specs)),
		order:   make([]Address, 0, len(specs)),
	}

	for _, spec := range specs {
		addr, err := ParseAddress(spec.Address)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", spec.ID, err)
		}
		key, err := ParseBindKey(spec.BindKey)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", spec.ID, err)
		}
		if existing, ok := t.devices[addr]; ok {
			return nil, fmt.Errorf("%w: %s used by %q and %q", ErrDuplicateDevice, addr, existing.ID, spec.ID)
		}

		t.devices[addr] = &Device{
			ID:      spec.ID,
			Address: addr,
			BindKey: key,
			Keys:    slices.Clone(spec.Keys),
		}
		t.order = append(t.order, addr)
	}

	return t, nil
}

// Lookup returns the device configured for addr.
func (t *DeviceTable) Lookup(addr Address) (*Device, bool) {
	d, ok := t.devices[addr]
	return d, ok
}

// Len returns the number of configured devices.
func (t *DeviceTable) Len() int {
	return len(t.order)
}

// Addresses returns the configured addresses in configuration order.
func (t *DeviceTable) Addresses() []Address {
	return slices.Clone(t.order)
}

// Devices returns the configured devices in configuration order.
func (t *DeviceTable) Devices() []*Device {
	out := make([]*Device, 0, len(t.order))
	for _, addr := range t.order {
		out = append(out, t.devices[addr])
	}
	return out
}
