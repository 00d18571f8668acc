package pipeline

import "errors"

var (
	// ErrInvalidOptions is returned by New for incomplete options.
	ErrInvalidOptions = errors.New("pipeline: invalid options")

	// ErrSinkRegistration wraps a state sink registration failure.
	ErrSinkRegistration = errors.New("pipeline: sink registration failed")
)
