package ble

import "errors"

// Domain errors for the BLE bridge package.
var (
	// ErrMalformedAddress is returned when a hardware address string is not
	// a positive, even count of hexadecimal digits (separators excluded), or
	// does not have the expected length.
	ErrMalformedAddress = errors.New("ble: malformed address")

	// ErrInvalidBindKey is returned when a bindkey is not 16 bytes of hex.
	ErrInvalidBindKey = errors.New("ble: invalid bindkey")

	// ErrDecodeFailed wraps any failure reported by the frame decoder.
	ErrDecodeFailed = errors.New("ble: decode failed")

	// ErrScanStopped is returned when the scanning source ends a session
	// without an error while the producer context is still live.
	ErrScanStopped = errors.New("ble: scan stopped unexpectedly")

	// ErrDuplicateDevice is returned when two devices share an address.
	ErrDuplicateDevice = errors.New("ble: duplicate device address")
)
