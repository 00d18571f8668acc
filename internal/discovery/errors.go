package discovery

import "errors"

var (
	// ErrInvalidSensor is returned when a registration lacks a device id
	// or measurement key.
	ErrInvalidSensor = errors.New("discovery: invalid sensor")

	// ErrPublishConfig wraps a failure to publish a discovery config.
	ErrPublishConfig = errors.New("discovery: publishing config failed")
)
