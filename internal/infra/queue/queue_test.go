package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsBackend(t *testing.T) {
	tests := []struct {
		name string
		typ  string
	}{
		{"自动模式无 Redis", TypeAuto},
		{"显式内存", TypeMemory},
		{"配置 Redis 但不可用", TypeRedis},
		{"未知类型", "kafka"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(tt.typ, nil)
			defer q.Close()
			_, ok := q.(*MemoryQueue)
			assert.True(t, ok)
		})
	}
}

func TestMemoryQueue_DeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemoryQueue()
	defer q.Close()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, q.Publish(ctx, []byte(p)))
	}

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		q.Consume(ctx, func(_ context.Context, payload []byte) error {
			mu.Lock()
			got = append(got, string(payload))
			n := len(got)
			mu.Unlock()
			if n == 3 {
				close(done)
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages")
	}
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	mu.Unlock()
}

func TestMemoryQueue_RetriesFailedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemoryQueue(WithMaxAttempts(3), WithRetryDelay(5*time.Millisecond))
	defer q.Close()

	var calls atomic.Int32
	succeeded := make(chan struct{})
	go q.Consume(ctx, func(context.Context, []byte) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(succeeded)
		return nil
	})

	require.NoError(t, q.Publish(ctx, []byte("job")))
	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestMemoryQueue_DropsAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemoryQueue(WithMaxAttempts(2), WithRetryDelay(time.Millisecond))
	defer q.Close()

	var calls atomic.Int32
	go q.Consume(ctx, func(context.Context, []byte) error {
		calls.Add(1)
		return errors.New("permanent")
	})

	require.NoError(t, q.Publish(ctx, []byte("job")))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryQueue_Close(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	stopped := make(chan error, 1)
	go func() { stopped <- q.Consume(ctx, func(context.Context, []byte) error { return nil }) }()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after Close")
	}
	assert.ErrorIs(t, q.Publish(ctx, []byte("late")), ErrClosed)
}

func TestMemoryQueue_PublishCopiesPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewMemoryQueue()
	defer q.Close()

	buf := []byte("abc")
	require.NoError(t, q.Publish(ctx, buf))
	buf[0] = 'x'

	got := make(chan string, 1)
	go q.Consume(ctx, func(_ context.Context, payload []byte) error {
		got <- string(payload)
		return nil
	})
	select {
	case p := <-got:
		assert.Equal(t, "abc", p)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryDelay(2*time.Second, 0))
	assert.Equal(t, 6*time.Second, retryDelay(2*time.Second, 3))
}
