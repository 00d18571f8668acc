package mqtt

import "errors"

var (
	// ErrNotConnected means the broker session is down. Callers may retry
	// after the client reconnects.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed wraps failures of the initial connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrInvalidMessage covers an empty topic, a QoS above 2, an oversized
	// payload or a nil handler.
	ErrInvalidMessage = errors.New("mqtt: invalid message")

	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt: broker acknowledgement timed out")

	// ErrRejected wraps an error reported by the broker or paho for a
	// publish or subscribe.
	ErrRejected = errors.New("mqtt: request rejected")
)
