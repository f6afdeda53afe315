package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"devreg/pkg/logger"
)

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) NotifyExpired(ctx context.Context, batch int) (int, error) {
	args := m.Called(ctx, batch)
	return args.Int(0), args.Error(1)
}

func TestScheduler_RunsImmediatelyAndStops(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	var runs int32

	s.Schedule(Job{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	s.Start()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&runs), "no runs after Stop")
}

func TestScheduler_IgnoresInvalidJobs(t *testing.T) {
	s := NewScheduler(logger.NewNop())
	s.Schedule(Job{Name: "no-interval", Run: func(context.Context) error { return nil }})
	s.Schedule(Job{Name: "no-run", Interval: time.Second})
	assert.Empty(t, s.jobs)

	s.Stop()
}

func TestTransferExpiryJob_DrainsBatches(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("NotifyExpired", mock.Anything, 2).Return(2, nil).Twice()
	sweeper.On("NotifyExpired", mock.Anything, 2).Return(1, nil).Once()

	job := TransferExpiryJob(sweeper, time.Minute, 2, logger.NewNop())
	require.NoError(t, job.Run(context.Background()))
	sweeper.AssertNumberOfCalls(t, "NotifyExpired", 3)
}

func TestTransferExpiryJob_PropagatesError(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("NotifyExpired", mock.Anything, 50).Return(0, assert.AnError)

	job := TransferExpiryJob(sweeper, time.Minute, 50, logger.NewNop())
	assert.ErrorIs(t, job.Run(context.Background()), assert.AnError)
}
