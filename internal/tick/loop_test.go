package tick

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_AfterRunsOnLaterTick(t *testing.T) {
	l := NewLoop(20)
	var ran []uint64

	l.After(1, func() { ran = append(ran, l.Tick()) })
	l.After(3, func() { ran = append(ran, l.Tick()) })
	assert.Equal(t, 2, l.Pending())

	l.Step()
	assert.Equal(t, []uint64{1}, ran)
	l.Step()
	assert.Equal(t, []uint64{1}, ran)
	l.Step()
	assert.Equal(t, []uint64{1, 3}, ran)
	assert.Zero(t, l.Pending())
}

func TestLoop_AfterZeroIsNextTick(t *testing.T) {
	l := NewLoop(20)
	ran := false
	l.After(0, func() { ran = true })
	l.Step()
	assert.True(t, ran)
}

func TestLoop_TaskScheduledFromTaskWaits(t *testing.T) {
	l := NewLoop(20)
	var ticks []uint64
	l.After(1, func() {
		ticks = append(ticks, l.Tick())
		l.After(1, func() { ticks = append(ticks, l.Tick()) })
	})

	l.Step()
	assert.Equal(t, []uint64{1}, ticks)
	l.Step()
	assert.Equal(t, []uint64{1, 2}, ticks)
}

func TestLoop_StepOrder(t *testing.T) {
	l := NewLoop(20)
	var order []string

	l.OnTick(func(uint64) { order = append(order, "hook") })
	require.NoError(t, l.Post(context.Background(), func() {
		order = append(order, "action")
		l.After(1, func() { order = append(order, "deferred") })
	}))

	l.Step()
	assert.Equal(t, []string{"action", "hook"}, order)
	l.Step()
	assert.Equal(t, []string{"action", "hook", "deferred", "hook"}, order)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := NewLoop(20)
	l.Stop()
	l.Stop()
	assert.ErrorIs(t, l.Post(context.Background(), func() {}), ErrStopped)
}

func TestLoop_DefaultRate(t *testing.T) {
	l := NewLoop(0)
	assert.Equal(t, 20, l.RateHz())
	assert.Equal(t, 50*time.Millisecond, l.Interval())
}

func TestLoop_RunProcessesPostedActions(t *testing.T) {
	l := NewLoop(100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	executed := make(chan uint64, 1)
	require.NoError(t, l.Post(ctx, func() { executed <- l.Tick() }))

	select {
	case n := <-executed:
		assert.GreaterOrEqual(t, n, uint64(1))
	case <-time.After(2 * time.Second):
		t.Fatal("действие не выполнено")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился")
	}
}

func TestLoop_StopEndsRun(t *testing.T) {
	l := NewLoop(100)
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	l.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился")
	}
}
