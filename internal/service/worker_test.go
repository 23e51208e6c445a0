package service

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRunner_SubmitAndCancel(t *testing.T) {
	r := NewTaskRunner(logger.Discard())
	started := make(chan struct{})
	stopped := make(chan error, 1)

	ok := r.Submit(1, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
	})
	require.True(t, ok)
	<-started

	assert.Equal(t, 1, r.Active())
	assert.False(t, r.Submit(1, func(context.Context) {}), "duplicate id is refused")

	assert.True(t, r.Cancel(1))
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("task did not observe cancellation")
	}

	assert.Eventually(t, func() bool { return r.Active() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, r.Cancel(1))
}

func TestTaskRunner_IndependentTasks(t *testing.T) {
	r := NewTaskRunner(logger.Discard())
	release := make(chan struct{})
	done := make(chan int64, 2)

	for _, id := range []int64{1, 2} {
		require.True(t, r.Submit(id, func(ctx context.Context) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			done <- id
		}))
	}

	r.Cancel(1)
	assert.Equal(t, int64(1), <-done)
	assert.Eventually(t, func() bool { return r.Active() == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	assert.Equal(t, int64(2), <-done)
}

func TestTaskRunner_RecoversPanics(t *testing.T) {
	r := NewTaskRunner(logger.Discard())
	require.True(t, r.Submit(7, func(context.Context) { panic("boom") }))

	assert.Eventually(t, func() bool { return r.Active() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, r.Submit(7, func(context.Context) {}), "id is reusable after a panic")
}

func TestTaskRunner_Shutdown(t *testing.T) {
	r := NewTaskRunner(logger.Discard())
	require.True(t, r.Submit(1, func(ctx context.Context) { <-ctx.Done() }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	assert.Equal(t, 0, r.Active())
	assert.False(t, r.Submit(2, func(context.Context) {}), "no new work after shutdown")
}

func TestTaskRunner_ShutdownTimeout(t *testing.T) {
	r := NewTaskRunner(logger.Discard())
	block := make(chan struct{})
	defer close(block)
	require.True(t, r.Submit(1, func(context.Context) { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
}
