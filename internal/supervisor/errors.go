package supervisor

import "errors"

var (
	// ErrUnexpectedExit is recorded when a task returns nil while its
	// context is still live. Supervised tasks are expected to run forever.
	ErrUnexpectedExit = errors.New("supervisor: task exited unexpectedly")

	// ErrTaskPanic wraps a panic recovered from a task.
	ErrTaskPanic = errors.New("supervisor: task panicked")

	// ErrMaxRestarts is returned by Run when MaxRestartAttempts is exceeded.
	ErrMaxRestarts = errors.New("supervisor: max restart attempts reached")
)
