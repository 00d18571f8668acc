package atcmi

import "errors"

// Decoder errors.
var (
	// ErrUnsupportedFormat is returned for a frame format this package does
	// not decode, or a BTHome object it cannot size.
	ErrUnsupportedFormat = errors.New("atcmi: unsupported format")

	// ErrFrameTooShort is returned when a frame is shorter than its layout.
	ErrFrameTooShort = errors.New("atcmi: frame too short")

	// ErrMissingBindKey is returned for an encrypted frame from a device
	// with no bindkey configured.
	ErrMissingBindKey = errors.New("atcmi: bindkey required for encrypted frame")

	// ErrDecryptFailed is returned when the AES-CCM tag does not verify.
	ErrDecryptFailed = errors.New("atcmi: decryption failed")
)
