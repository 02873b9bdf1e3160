package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop(), time.Second)
	defer s.Stop()

	var calls atomic.Int32
	job := JobFunc{JobName: "count", Fn: func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		calls.Add(1)
		return nil
	}}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunNowPropagatesError(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	defer s.Stop()

	boom := errors.New("boom")
	err := s.RunNow(JobFunc{JobName: "fail", Fn: func(context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	defer s.Stop()

	err := s.AddJob("not a schedule", JobFunc{JobName: "x", Fn: func(context.Context) error { return nil }})
	assert.Error(t, err)
	assert.NoError(t, s.AddJob("@daily", JobFunc{JobName: "y", Fn: func(context.Context) error { return nil }}))
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New(zerolog.Nop(), 0)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.RunNow(JobFunc{JobName: "wait", Fn: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}})
	}()

	<-started
	s.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not observe cancellation")
	}
}
