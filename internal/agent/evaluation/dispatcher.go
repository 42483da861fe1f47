package evaluation

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Chative-support-agent/server/internal/core/metrics"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// Dispatcher runs background evaluations on a fixed pool of workers fed by a
// bounded queue. Submit never blocks; a full queue drops the job.
type Dispatcher struct {
	handle  func(ctx context.Context, conversationID string) error
	workers int

	mu     sync.Mutex
	jobs   chan string
	closed bool
	group  *errgroup.Group
}

func NewDispatcher(workers, queueSize int, handle func(ctx context.Context, conversationID string) error) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		handle:  handle,
		workers: workers,
		jobs:    make(chan string, queueSize),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id, ok := <-d.jobs:
					if !ok {
						return nil
					}
					d.run(ctx, id)
				}
			}
		})
	}
	d.mu.Lock()
	d.group = g
	d.mu.Unlock()
	logx.Debug().Int("workers", d.workers).Int("queue_size", cap(d.jobs)).Msg("Evaluation dispatcher started")
}

func (d *Dispatcher) run(ctx context.Context, conversationID string) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Interface("panic", r).Str("conversation_id", conversationID).Msg("Background evaluation panicked")
		}
	}()
	if err := d.handle(ctx, conversationID); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Background evaluation failed")
	}
}

// Submit enqueues an evaluation and reports whether it was accepted.
func (d *Dispatcher) Submit(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- conversationID:
		return true
	default:
		metrics.EvaluationQueueDropped.Inc()
		logx.Warn().Str("conversation_id", conversationID).Msg("Evaluation queue full; dropping background evaluation")
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	g := d.group
	d.mu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}
