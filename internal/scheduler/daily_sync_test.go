package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/billtracker/internal/model"
)

type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	args    []int
	started chan struct{}
	release chan struct{}
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 10), release: make(chan struct{})}
}

func (r *blockingRunner) RunDaily(ctx context.Context, congress int, billTypes []string) (*model.SyncSnapshot, error) {
	r.mu.Lock()
	r.calls++
	r.args = append(r.args, congress)
	r.mu.Unlock()

	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &model.SyncSnapshot{ID: 1, Congress: congress, Status: model.SyncStatusCompleted}, nil
}

func (r *blockingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 6 * * *"))
	assert.NoError(t, ValidateSchedule("*/15 * * * 1-5"))
	assert.Error(t, ValidateSchedule("not a schedule"))
	assert.Error(t, ValidateSchedule("0 0 6 * * *"))
}

func TestRunSync_SkipsWhileInFlight(t *testing.T) {
	runner := newBlockingRunner()
	s := NewDailySyncScheduler(runner, "0 6 * * *", 119, []string{"hr"}, nil)

	done := make(chan bool)
	go func() { done <- s.runSync(context.Background()) }()
	<-runner.started

	assert.True(t, s.IsSyncing())
	assert.False(t, s.runSync(context.Background()), "overlapping run should be skipped")

	close(runner.release)
	assert.True(t, <-done)
	assert.False(t, s.IsSyncing())
	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, []int{119}, runner.args)
}

func TestRunSync_ErrorClearsGuard(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("boom")
	close(runner.release)
	s := NewDailySyncScheduler(runner, "0 6 * * *", 0, nil, nil)

	assert.True(t, s.runSync(context.Background()))
	<-runner.started
	assert.False(t, s.IsSyncing())
	assert.True(t, s.runSync(context.Background()))
	assert.Equal(t, 2, runner.callCount())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewDailySyncScheduler(newBlockingRunner(), "every day", 0, nil, nil)

	err := s.Start(context.Background())

	require.Error(t, err)
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.NextRunTime())
}

func TestStartStop(t *testing.T) {
	s := NewDailySyncScheduler(newBlockingRunner(), "0 6 * * *", 0, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")

	next := s.NextRunTime()
	require.NotNil(t, next)
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 0, next.Minute())

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.NextRunTime())
	s.Stop()
}

func TestRunNow_CanceledWithScheduler(t *testing.T) {
	runner := newBlockingRunner()
	s := NewDailySyncScheduler(runner, "0 6 * * *", 0, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	s.RunNow()
	<-runner.started
	assert.True(t, s.IsSyncing())

	cancel()
	assert.Eventually(t, func() bool { return !s.IsSyncing() && !s.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestStop_WaitsForRunNow(t *testing.T) {
	runner := newBlockingRunner()
	s := NewDailySyncScheduler(runner, "0 6 * * *", 0, nil, nil)
	require.NoError(t, s.Start(context.Background()))

	s.RunNow()
	<-runner.started
	require.True(t, s.IsSyncing())

	s.Stop()

	assert.False(t, s.IsSyncing(), "Stop returned before the manual run finished")
	assert.False(t, s.IsRunning())
	assert.Equal(t, 1, runner.callCount())
}
