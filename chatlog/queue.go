package chatlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// writeQueue runs durable writes for one log strictly in the order they were
// enqueued. Each write waits for its predecessor. A failed write is logged
// and the queue moves on.
type writeQueue struct {
	mu      sync.Mutex
	tail    chan struct{}
	write   func(ctx context.Context, data []byte) error
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func newWriteQueue(write func(context.Context, []byte) error, timeout time.Duration, logger *zap.SugaredLogger) *writeQueue {
	return &writeQueue{write: write, timeout: timeout, logger: logger}
}

// enqueue schedules data to be written and returns immediately.
func (q *writeQueue) enqueue(data []byte) {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		defer cancel()
		if err := q.write(ctx, data); err != nil {
			q.logger.Errorw("Failed to persist chat log", "error", err)
		}
	}()
}

// flush blocks until every write enqueued so far has finished.
func (q *writeQueue) flush(ctx context.Context) error {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()

	if tail == nil {
		return nil
	}
	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
