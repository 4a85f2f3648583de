package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts []int
	)
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, task.Attempt)
		if task.Attempt < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, Config{RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{Kind: "image.delete", Key: "products/p1/a.png"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not retried")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	calls := make(chan struct{}, 16)
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		calls <- struct{}{}
		return errors.New("permanent")
	}, Config{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Task{Key: "k"}))
	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected attempt %d", i)
		}
	}
	select {
	case <-calls:
		t.Fatal("retried past the limit")
	case <-time.After(50 * time.Millisecond):
	}
	q.Stop()
}

func TestEnqueueRequiresStartedQueue(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Task) error { return nil }, Config{})
	assert.Error(t, q.Enqueue(Task{Key: "k"}))

	q.Start(context.Background())
	q.Stop()
	assert.Error(t, q.Enqueue(Task{Key: "k"}))
}

func TestEnqueueFailsWhenBufferIsFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("busy", func(ctx context.Context, task Task) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, Config{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	require.NoError(t, q.Enqueue(Task{Key: "first"}))
	require.Eventually(t, func() bool { return len(q.tasks) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Task{Key: "second"}))
	assert.ErrorIs(t, q.Enqueue(Task{Key: "third"}), ErrQueueFull)
}
