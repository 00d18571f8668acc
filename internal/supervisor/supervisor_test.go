package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Name: "producer", Task: func(context.Context) error { return nil }})

	if s.config.RestartDelay != DefaultRestartDelay {
		t.Errorf("RestartDelay = %v, want %v", s.config.RestartDelay, DefaultRestartDelay)
	}
	if s.config.MaxRestartAttempts != 0 {
		t.Errorf("MaxRestartAttempts = %d, want 0 (unlimited)", s.config.MaxRestartAttempts)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusStopped)
	}
	if s.Name() != "producer" {
		t.Errorf("Name() = %q, want producer", s.Name())
	}
}

// TestRun_FailsThenRecovers runs a task that fails N times and then keeps
// running: it must be invoked exactly N+1 times, with the back-off between
// consecutive attempts, and Run must not return on its own.
func TestRun_FailsThenRecovers(t *testing.T) {
	const (
		failures = 3
		delay    = 20 * time.Millisecond
	)

	var (
		mu       sync.Mutex
		calls    int
		callTime []time.Time
	)
	running := make(chan struct{})

	task := func(ctx context.Context) error {
		mu.Lock()
		calls++
		n := calls
		callTime = append(callTime, time.Now())
		mu.Unlock()

		if n <= failures {
			return errors.New("adapter reset")
		}
		close(running)
		<-ctx.Done()
		return ctx.Err()
	}

	logger := &recordingLogger{}
	var failuresSeen []error
	s := New(Config{
		Name:         "producer",
		Task:         task,
		RestartDelay: delay,
		OnFailure: func(err error) {
			failuresSeen = append(failuresSeen, err)
		},
	})
	s.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-running:
	case <-time.After(5 * time.Second):
		t.Fatal("task never reached its healthy run")
	}

	// Run must still be going.
	select {
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(3 * delay):
	}

	if s.Status() != StatusRunning {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusRunning)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()

	if calls != failures+1 {
		t.Errorf("task invoked %d times, want %d", calls, failures+1)
	}
	for i := 1; i < len(callTime); i++ {
		if gap := callTime[i].Sub(callTime[i-1]); gap < delay {
			t.Errorf("attempt %d started %v after previous, want >= %v", i+1, gap, delay)
		}
	}
	if len(failuresSeen) != failures {
		t.Errorf("OnFailure called %d times, want %d", len(failuresSeen), failures)
	}
	if s.RestartCount() != failures {
		t.Errorf("RestartCount() = %d, want %d", s.RestartCount(), failures)
	}
	if logger.errorCount() != failures {
		t.Errorf("error logs = %d, want %d", logger.errorCount(), failures)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status() after cancel = %q, want %q", s.Status(), StatusStopped)
	}
}

func TestRun_NormalReturnIsFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Config{
		Name: "consumer:log",
		Task: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 2 {
				cancel()
			}
			return nil
		},
		RestartDelay: time.Millisecond,
	})

	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if !errors.Is(s.LastError(), ErrUnexpectedExit) {
		t.Errorf("LastError() = %v, want ErrUnexpectedExit", s.LastError())
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	var calls int
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Config{
		Name: "producer",
		Task: func(ctx context.Context) error {
			calls++
			if calls == 1 {
				panic("nil frame")
			}
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
		RestartDelay: time.Millisecond,
	})

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if !errors.Is(s.LastError(), ErrTaskPanic) {
		t.Errorf("LastError() = %v, want ErrTaskPanic", s.LastError())
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRun_MaxRestartAttempts(t *testing.T) {
	taskErr := errors.New("scan failed")
	var calls int

	var restarts []int
	s := New(Config{
		Name:               "producer",
		Task:               func(context.Context) error { calls++; return taskErr },
		RestartDelay:       time.Millisecond,
		MaxRestartAttempts: 2,
		OnRestart:          func(attempt int) { restarts = append(restarts, attempt) },
	})

	err := s.Run(context.Background())
	if !errors.Is(err, ErrMaxRestarts) {
		t.Fatalf("Run() error = %v, want ErrMaxRestarts", err)
	}
	if !errors.Is(err, taskErr) {
		t.Errorf("Run() error = %v, want it to wrap the task error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(restarts) != 2 || restarts[0] != 1 || restarts[1] != 2 {
		t.Errorf("OnRestart attempts = %v, want [1 2]", restarts)
	}
	if s.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", s.Status(), StatusFailed)
	}
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Config{
		Name:         "producer",
		Task:         func(context.Context) error { return errors.New("boom") },
		RestartDelay: time.Hour,
		OnFailure:    func(error) { cancel() },
	})

	start := time.Now()
	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Run() waited out the back-off after cancel")
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	s := New(Config{Name: "producer", Task: func(context.Context) error { called = true; return nil }})

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("task ran with a cancelled context")
	}
}

// TestRun_IndependentSchedules checks that a failing task does not delay
// another supervisor's task.
func TestRun_IndependentSchedules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := New(Config{
		Name:         "failing",
		Task:         func(context.Context) error { return errors.New("always") },
		RestartDelay: time.Hour,
	})

	healthyStarted := make(chan struct{})
	healthy := New(Config{
		Name: "healthy",
		Task: func(ctx context.Context) error {
			close(healthyStarted)
			<-ctx.Done()
			return ctx.Err()
		},
	})

	go failing.Run(ctx)  //nolint:errcheck // Cancelled below
	go healthy.Run(ctx) //nolint:errcheck // Cancelled below

	select {
	case <-healthyStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy task blocked by failing supervisor")
	}
}

func TestStats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	var calls int
	s := New(Config{
		Name: "consumer:publisher",
		Task: func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("broker gone")
			}
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		RestartDelay: time.Millisecond,
	})

	go s.Run(ctx) //nolint:errcheck // Cancelled by defer

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not restart")
	}
	time.Sleep(5 * time.Millisecond)

	stats := s.Stats()
	if stats.Name != "consumer:publisher" {
		t.Errorf("Name = %q", stats.Name)
	}
	if stats.Status != StatusRunning {
		t.Errorf("Status = %q, want running", stats.Status)
	}
	if stats.Starts != 2 {
		t.Errorf("Starts = %d, want 2", stats.Starts)
	}
	if stats.RestartCount != 1 {
		t.Errorf("RestartCount = %d, want 1", stats.RestartCount)
	}
	if stats.LastError != "broker gone" {
		t.Errorf("LastError = %q, want %q", stats.LastError, "broker gone")
	}
	if stats.LastFailure.IsZero() {
		t.Error("LastFailure is zero")
	}
	if stats.Uptime <= 0 || s.Uptime() <= 0 {
		t.Error("Uptime should be positive while running")
	}
}
