package eventloop_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chaos-stories/pkg/eventloop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoopDoRunsInOrder(t *testing.T) {
	l := eventloop.New(zap.NewNop())
	defer l.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { order = append(order, i) })
	}
	err := l.Do(context.Background(), func() error {
		order = append(order, 99)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 99}, order)
}

func TestLoopDoReturnsError(t *testing.T) {
	l := eventloop.New(zap.NewNop())
	defer l.Close()

	boom := errors.New("boom")
	assert.ErrorIs(t, l.Do(context.Background(), func() error { return boom }), boom)
}

func TestLoopDoRecoversPanic(t *testing.T) {
	l := eventloop.New(zap.NewNop())
	defer l.Close()

	err := l.Do(context.Background(), func() error { panic("oops") })
	require.Error(t, err)

	// Цикл продолжает работать после паники
	assert.NoError(t, l.Do(context.Background(), func() error { return nil }))
}

func TestLoopAfterFuncAndGo(t *testing.T) {
	l := eventloop.New(zap.NewNop())
	defer l.Close()

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	got := make(chan int, 1)
	l.Go(func() func() {
		v := 42
		return func() { got <- v }
	})
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("continuation was not posted")
	}
}

func TestLoopStoppedTimerDoesNotFire(t *testing.T) {
	l := eventloop.New(zap.NewNop())
	defer l.Close()

	var fired atomic.Bool
	timer := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, timer.Stop())
	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestLoopClosed(t *testing.T) {
	l := eventloop.New(zap.NewNop())
	l.Close()
	l.Close()

	assert.ErrorIs(t, l.Do(context.Background(), func() error { return nil }), eventloop.ErrClosed)
}

func TestLoopDoContextCancelled(t *testing.T) {
	l := eventloop.New(zap.NewNop())
	defer l.Close()

	release := make(chan struct{})
	l.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestVirtualAdvance(t *testing.T) {
	v := eventloop.NewVirtual()

	var order []string
	v.AfterFunc(200*time.Millisecond, func() { order = append(order, "late") })
	v.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "early")
		v.AfterFunc(50*time.Millisecond, func() { order = append(order, "chained") })
	})
	stopped := v.AfterFunc(120*time.Millisecond, func() { order = append(order, "stopped") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	v.Advance(99 * time.Millisecond)
	assert.Empty(t, order)

	v.Advance(101 * time.Millisecond)
	assert.Equal(t, []string{"early", "chained", "late"}, order)
	assert.Equal(t, 200*time.Millisecond, v.Now())
	assert.Zero(t, v.PendingTimers())
}

func TestVirtualRunBackground(t *testing.T) {
	v := eventloop.NewVirtual()

	var got []string
	v.Go(func() func() {
		return func() { got = append(got, "loaded") }
	})
	assert.Equal(t, 1, v.PendingBackground())
	v.Advance(time.Second)
	assert.Empty(t, got)

	v.RunBackground()
	assert.Equal(t, []string{"loaded"}, got)
	assert.Zero(t, v.PendingBackground())
}
