package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	dispatch := New[string](queue, []Runner{&dequeueRunner{queue: queue}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New[string](queue, nil)

	err := dispatch.Enqueue(context.Background(), "job")
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type dequeueRunner struct {
	queue Queue[string]
}

func (r *dequeueRunner) Run(ctx context.Context) {
	for {
		if _, err := r.queue.Dequeue(ctx); err != nil && ctx.Err() != nil {
			return
		}
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, string) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, string) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (string, error) {
	return "", nil
}
