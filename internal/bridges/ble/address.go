package ble

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLen is the length of a BLE hardware address in bytes.
const AddressLen = 6

// BindKeyLen is the length of a sensor bindkey (AES-128) in bytes.
const BindKeyLen = 16

// DefaultSeparator joins address octets in their human-readable form.
const DefaultSeparator = ":"

// Address is a BLE hardware address in transmission order
// (most significant octet first, as printed).
//
// Address is comparable and is used as the key of every per-device table.
type Address [AddressLen]byte

// EncodeHex renders b as uppercase hexadecimal octets joined by sep.
//
// Example: EncodeHex([]byte{0xa4, 0xc1}, ":") → "A4:C1"
func EncodeHex(b []byte, sep string) string {
	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = fmt.Sprintf("%02X", octet)
	}
	return strings.Join(parts, sep)
}

// DecodeHex strips every occurrence of sep from s and parses the remaining
// hexadecimal digit pairs. Both upper and lower case digits are accepted.
//
// Parameters:
//   - s: Address or key string (e.g., "A4:C1:38:7A:A5:7E")
//   - sep: Separator to strip; empty means none
//
// Returns:
//   - []byte: Decoded bytes
//   - error: ErrMalformedAddress if the digit count is zero or odd, or a
//     non-hex character is present
func DecodeHex(s, sep string) ([]byte, error) {
	digits := s
	if sep != "" {
		digits = strings.ReplaceAll(s, sep, "")
	}
	if len(digits) == 0 || len(digits)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has %d hex digits", ErrMalformedAddress, s, len(digits))
	}

	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedAddress, s, err)
	}
	return b, nil
}

// ParseAddress parses a colon-separated hardware address.
//
// Example:
//
//	addr, err := ParseAddress("A4:C1:38:7A:A5:7E")
func ParseAddress(s string) (Address, error) {
	b, err := DecodeHex(s, DefaultSeparator)
	if err != nil {
		return Address{}, err
	}
	if len(b) != AddressLen {
		return Address{}, fmt.Errorf("%w: %q is %d bytes, want %d", ErrMalformedAddress, s, len(b), AddressLen)
	}

	var addr Address
	copy(addr[:], b)
	return addr, nil
}

// AddressFromBytes copies b into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLen {
		return Address{}, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedAddress, len(b), AddressLen)
	}
	var addr Address
	copy(addr[:], b)
	return addr, nil
}

// String returns the canonical form: uppercase octets joined by ":".
func (a Address) String() string {
	return EncodeHex(a[:], DefaultSeparator)
}

// Bytes returns a copy of the address octets.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLen)
	copy(b, a[:])
	return b
}

// Reversed returns the octets in little-endian (over-the-air) order, as
// embedded in pvvx custom frames and encryption nonces.
func (a Address) Reversed() []byte {
	b := make([]byte, AddressLen)
	for i := range a {
		b[i] = a[AddressLen-1-i]
	}
	return b
}

// MarshalText implements encoding.TextMarshaler so addresses render
// canonically in JSON and structured logs.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseBindKey parses a 32-digit hex bindkey. An empty string means the
// device has no bindkey and returns nil without error.
func ParseBindKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := DecodeHex(s, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBindKey, err)
	}
	if len(b) != BindKeyLen {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidBindKey, len(b), BindKeyLen)
	}
	return b, nil
}
