package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a supervised task.
type Status string

const (
	StatusStopped    Status = "stopped"
	StatusRunning    Status = "running"
	StatusRestarting Status = "restarting"
	StatusFailed     Status = "failed"
)

// DefaultRestartDelay is the back-off used when Config.RestartDelay is zero.
const DefaultRestartDelay = 10 * time.Second

// Task is a unit of long-running work. It should block until ctx is
// cancelled or it fails.
type Task func(ctx context.Context) error

// Config holds configuration for a supervised task.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Task is the work to keep alive.
	Task Task

	// RestartDelay is the fixed time to wait before restarting after a failure.
	RestartDelay time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// OnStart is called each time the task starts.
	OnStart func()

	// OnStop is called each time the task ends. err is nil on shutdown.
	OnStop func(err error)

	// OnFailure is called with every failure, before the back-off starts.
	OnFailure func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats contains supervised task statistics.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Starts       int           `json:"starts"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
	LastFailure  time.Time     `json:"last_failure,omitzero"`
	StartTime    time.Time     `json:"start_time,omitzero"`
	Uptime       time.Duration `json:"uptime"`
}

// Supervisor runs a task and restarts it after every failure.
type Supervisor struct {
	config Config
	logger Logger

	mu           sync.RWMutex
	status       Status
	starts       int
	restartCount int
	lastError    error
	lastFailure  time.Time
	startTime    time.Time
}

// New creates a supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}

	return &Supervisor{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Name returns the task name.
func (s *Supervisor) Name() string {
	return s.config.Name
}

// Run executes the task until ctx is cancelled, restarting it after each
// failure. It blocks for the lifetime of the task.
//
// Returns:
//   - error: ctx.Err() on shutdown, or ErrMaxRestarts wrapping the last
//     failure when a restart limit is configured and exceeded
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			s.setStatus(StatusStopped)
			return err
		}

		s.markStarted()
		s.logger.Info("starting task", "name", s.config.Name, "start", s.Starts())
		if s.config.OnStart != nil {
			s.config.OnStart()
		}

		err := s.runOnce(ctx)

		if ctx.Err() != nil {
			s.setStatus(StatusStopped)
			s.logger.Info("task stopped", "name", s.config.Name)
			if s.config.OnStop != nil {
				s.config.OnStop(nil)
			}
			return ctx.Err()
		}

		if err == nil {
			err = ErrUnexpectedExit
		}

		s.recordFailure(err)
		s.logger.Error("task failed, restarting",
			"name", s.config.Name,
			"error", err,
			"delay", s.config.RestartDelay,
		)
		if s.config.OnStop != nil {
			s.config.OnStop(err)
		}
		if s.config.OnFailure != nil {
			s.config.OnFailure(err)
		}

		s.mu.Lock()
		s.restartCount++
		attempt := s.restartCount
		s.mu.Unlock()

		if s.config.MaxRestartAttempts > 0 && attempt > s.config.MaxRestartAttempts {
			s.setStatus(StatusFailed)
			s.logger.Error("max restart attempts reached",
				"name", s.config.Name,
				"attempts", attempt-1,
			)
			return fmt.Errorf("%w: %s: %w", ErrMaxRestarts, s.config.Name, err)
		}

		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt)
		}

		timer := time.NewTimer(s.config.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStatus(StatusStopped)
			s.logger.Info("context cancelled, not restarting", "name", s.config.Name)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runOnce invokes the task, converting a panic into an error.
func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return s.config.Task(ctx)
}

func (s *Supervisor) markStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	s.starts++
	s.startTime = time.Now()
}

func (s *Supervisor) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRestarting
	s.lastError = err
	s.lastFailure = time.Now()
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Status returns the current task status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Starts returns how many times the task has been started.
func (s *Supervisor) Starts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.starts
}

// RestartCount returns the number of failures that led to a restart attempt.
func (s *Supervisor) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// LastError returns the most recent failure, if any.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Uptime returns how long the current attempt has been running.
// Returns 0 when the task is not running.
func (s *Supervisor) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning || s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Stats returns a snapshot of the task statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:         s.config.Name,
		Status:       s.status,
		Starts:       s.starts,
		RestartCount: s.restartCount,
		LastFailure:  s.lastFailure,
		StartTime:    s.startTime,
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	if s.status == StatusRunning && !s.startTime.IsZero() {
		stats.Uptime = time.Since(s.startTime)
	}
	return stats
}
