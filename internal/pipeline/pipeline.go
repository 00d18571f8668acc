package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
	"github.com/nerrad567/atc-bridge/internal/queue"
	"github.com/nerrad567/atc-bridge/internal/supervisor"
)

// Task names reported by Tasks.
const (
	TaskProducer       = "producer"
	taskConsumerPrefix = "consumer:"
)

// Runner is one producer session.
type Runner interface {
	Run(ctx context.Context) error
}

// TaskMetrics is notified of task activity. Optional.
type TaskMetrics interface {
	TaskRestarted(task string)
	RecordConsumed(consumer string)
}

// Options configures a Pipeline.
type Options struct {
	// Queue is shared by the producer and the consumer.
	Queue *queue.Queue[ble.Record]

	// NewProducer builds a fresh producer for every supervised attempt,
	// so each session starts with its own sequence counter.
	NewProducer func() (Runner, error)

	// Consumer is the single active consumer.
	Consumer Consumer

	// RestartDelay is the back-off after a task failure.
	// Zero uses supervisor.DefaultRestartDelay.
	RestartDelay time.Duration

	Metrics TaskMetrics
	Logger  Logger
}

// Pipeline runs the supervised producer and consumer tasks.
type Pipeline struct {
	queue    *queue.Queue[ble.Record]
	consumer Consumer
	metrics  TaskMetrics
	logger   Logger

	producer *supervisor.Supervisor
	consume  *supervisor.Supervisor
}

// New validates opts and builds both supervisors.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Queue == nil:
		return nil, fmt.Errorf("%w: queue is required", ErrInvalidOptions)
	case opts.NewProducer == nil:
		return nil, fmt.Errorf("%w: producer factory is required", ErrInvalidOptions)
	case opts.Consumer == nil:
		return nil, fmt.Errorf("%w: consumer is required", ErrInvalidOptions)
	}

	delay := opts.RestartDelay
	if delay <= 0 {
		delay = supervisor.DefaultRestartDelay
	}

	p := &Pipeline{
		queue:    opts.Queue,
		consumer: opts.Consumer,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}

	p.producer = p.newSupervisor(TaskProducer, delay, func(ctx context.Context) error {
		runner, err := opts.NewProducer()
		if err != nil {
			return fmt.Errorf("building producer: %w", err)
		}
		return runner.Run(ctx)
	})
	p.consume = p.newSupervisor(taskConsumerPrefix+opts.Consumer.Name(), delay, p.runConsumer)

	return p, nil
}

func (p *Pipeline) newSupervisor(name string, delay time.Duration, task supervisor.Task) *supervisor.Supervisor {
	s := supervisor.New(supervisor.Config{
		Name:         name,
		Task:         task,
		RestartDelay: delay,
		OnRestart: func(int) {
			if p.metrics != nil {
				p.metrics.TaskRestarted(name)
			}
		},
	})
	s.SetLogger(p.logger)
	return s
}

// runConsumer prepares the consumer, then pops and consumes records in
// queue order until ctx ends or a record fails.
func (p *Pipeline) runConsumer(ctx context.Context) error {
	name := p.consumer.Name()
	if err := p.consumer.Prepare(ctx, p.queue); err != nil {
		return fmt.Errorf("preparing consumer %s: %w", name, err)
	}

	for {
		rec, err := p.queue.Pop(ctx)
		if err != nil {
			return err
		}

		err = p.consumer.Consume(ctx, rec)
		p.queue.TaskDone()
		if err != nil {
			return fmt.Errorf("consumer %s: record %d: %w", name, rec.Sequence, err)
		}
		if p.metrics != nil {
			p.metrics.RecordConsumed(name)
		}
	}
}

// Run starts both tasks and blocks until ctx is cancelled.
//
// Returns:
//   - error: nil after a clean shutdown, otherwise the first task error
//     that was not caused by cancellation
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline starting", "consumer", p.consumer.Name())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.producer.Run(gctx) })
	g.Go(func() error { return p.consume.Run(gctx) })

	err := g.Wait()
	p.logger.Info("pipeline stopped", "queued", p.queue.Len())
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Tasks returns the status of both supervised tasks.
func (p *Pipeline) Tasks() []supervisor.Stats {
	return []supervisor.Stats{p.producer.Stats(), p.consume.Stats()}
}

// QueueDepth returns the number of records waiting for the consumer.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Len()
}
