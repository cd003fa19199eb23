// Package eventloop serializes callbacks onto a single goroutine.
//
// Everything that mutates a playthrough (commands, timer continuations, results of background work)
// is funnelled through one Scheduler, so the owner never needs its own locks.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("event loop closed")

// Timer is a scheduled continuation. Stop reports whether the call prevented the timer from firing;
// a continuation that already fired may still be queued, so owners must guard against late runs.
type Timer interface {
	Stop() bool
}

// Scheduler is the suspension primitive used by the transition engine and the game loop.
type Scheduler interface {
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Post queues fn to run on the loop.
	Post(fn func())
	// Go runs work off the loop; the function it returns, if any, is posted back to the loop.
	Go(work func() (then func()))
}

// Loop is a real-time Scheduler backed by one goroutine.
type Loop struct {
	log *zap.Logger

	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	workers sync.WaitGroup
}

// New starts a loop. Close must be called to release its goroutine.
func New(log *zap.Logger) *Loop {
	l := &Loop{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, fn := range batch {
			l.invoke(fn)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-l.wake
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Panic recovered in event loop callback", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Post implements Scheduler. Callbacks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool { return r.t.Stop() }

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, func() { l.Post(fn) })}
}

// Go implements Scheduler.
func (l *Loop) Go(work func() (then func())) {
	l.workers.Add(1)
	go func() {
		defer l.workers.Done()
		if then := work(); then != nil {
			l.Post(then)
		}
	}()
}

// Do runs fn on the loop and waits for its result. If ctx ends first the call returns ctx.Err(),
// but fn may still run later.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in event loop: %v", r)
			}
			result <- err
		}()
		err = fn()
	})
	l.mu.Unlock()
	l.signal()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The loop drains its queue before exiting, so the result is ready.
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	}
}

// Close stops accepting callbacks, runs what is already queued and waits for the loop to exit.
// Background work started with Go is not awaited (see Wait); its continuation is dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.signal()
	<-l.done
}

// Wait blocks until all background work started with Go has returned.
func (l *Loop) Wait() {
	l.workers.Wait()
}
