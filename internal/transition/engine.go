// Package transition runs the fade-out, preload, fade-in sequence between scenes.
//
// The engine knows nothing about game phases. It reports progress through Events and leaves
// the decision of what a ready scene means to its listener.
package transition

import (
	"errors"
	"time"

	"chaos-stories/internal/domain"
	"chaos-stories/pkg/eventloop"

	"go.uber.org/zap"
)

var (
	ErrTransitionInProgress = errors.New("transition already in progress")
	ErrNoScene              = errors.New("no target scene")
)

// State is the engine sub-state.
type State string

const (
	StateIdle      State = "idle"
	StateFadingOut State = "fading-out"
	StateLoading   State = "loading"
	StateFadingIn  State = "fading-in"
)

// EventKind names an engine notification.
type EventKind string

const (
	EventStart         EventKind = "transition_start"
	EventSceneReady    EventKind = "scene_ready"
	EventComplete      EventKind = "transition_complete"
	EventEndingReached EventKind = "ending_reached"
)

// Event is delivered to the listener synchronously, after the engine state has been updated.
type Event struct {
	Kind        EventKind
	Scene       *domain.Scene
	FromSceneID string
	Cycle       uint64
}

// Listener receives engine events.
type Listener interface {
	OnTransitionEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnTransitionEvent(e Event) { f(e) }

// Options are the timing bounds of a transition cycle.
type Options struct {
	FadeOut        time.Duration
	FadeIn         time.Duration
	PreloadCeiling time.Duration
}

// DefaultOptions returns 150ms fades and a 200ms preload ceiling.
func DefaultOptions() Options {
	return Options{
		FadeOut:        150 * time.Millisecond,
		FadeIn:         150 * time.Millisecond,
		PreloadCeiling: 200 * time.Millisecond,
	}
}

type cycle struct {
	id          uint64
	next        *domain.Scene
	from        string
	invalidated bool
	settled     bool
	ceiling     eventloop.Timer
	timers      []eventloop.Timer
}

func (c *cycle) stop() {
	c.invalidated = true
	for _, t := range c.timers {
		t.Stop()
	}
}

// Engine drives one transition cycle at a time. All methods and continuations must run on the
// scheduler's loop.
type Engine struct {
	log       *zap.Logger
	sched     eventloop.Scheduler
	preloader *Preloader
	rec       Recorder
	opts      Options
	listener  Listener

	state   State
	opacity float64
	current *cycle
	seq     uint64
}

// NewEngine creates an idle, fully visible engine. rec may be nil.
func NewEngine(log *zap.Logger, sched eventloop.Scheduler, preloader *Preloader, opts Options, listener Listener, rec Recorder) *Engine {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Engine{
		log:       log.Named("transition_engine"),
		sched:     sched,
		preloader: preloader,
		rec:       rec,
		opts:      opts,
		listener:  listener,
		state:     StateIdle,
		opacity:   1,
	}
}

// State returns the engine sub-state.
func (e *Engine) State() State { return e.state }

// Opacity returns the scene opacity: 0 while faded out, 1 otherwise.
func (e *Engine) Opacity() float64 { return e.opacity }

// Busy reports whether a cycle is in flight.
func (e *Engine) Busy() bool { return e.state != StateIdle }

// TransitionTo starts a cycle towards next. Terminal scenes short-circuit: only EventEndingReached
// is emitted and the engine stays idle.
func (e *Engine) TransitionTo(next *domain.Scene, fromSceneID string) error {
	if e.state != StateIdle {
		e.log.Warn("Transition requested while another is running",
			zap.String("state", string(e.state)),
			zap.String("next_scene_id", sceneID(next)),
		)
		return ErrTransitionInProgress
	}
	if next == nil {
		return ErrNoScene
	}

	e.seq++
	if next.IsEnding {
		e.emit(Event{Kind: EventEndingReached, Scene: next, FromSceneID: fromSceneID, Cycle: e.seq})
		return nil
	}

	c := &cycle{id: e.seq, next: next, from: fromSceneID}
	e.current = c
	e.state = StateFadingOut
	e.opacity = 0
	e.emit(Event{Kind: EventStart, Scene: next, FromSceneID: fromSceneID, Cycle: c.id})

	if !c.invalidated {
		c.timers = append(c.timers, e.sched.AfterFunc(e.opts.FadeOut, func() { e.load(c) }))
	}
	return nil
}

func (e *Engine) load(c *cycle) {
	if c.invalidated {
		return
	}
	e.state = StateLoading

	c.ceiling = e.sched.AfterFunc(e.opts.PreloadCeiling, func() {
		if c.invalidated || c.settled {
			return
		}
		e.log.Debug("Preload ceiling reached", zap.String("scene_id", c.next.ID), zap.String("image", c.next.BackgroundImage))
		e.rec.PreloadCeilingHit()
		e.ready(c)
	})
	c.timers = append(c.timers, c.ceiling)
	e.preloader.Preload(c.next.BackgroundImage, func() {
		if c.invalidated || c.settled {
			return
		}
		e.ready(c)
	})
}

func (e *Engine) ready(c *cycle) {
	c.settled = true
	c.ceiling.Stop()
	e.state = StateFadingIn
	e.opacity = 1
	e.emit(Event{Kind: EventSceneReady, Scene: c.next, FromSceneID: c.from, Cycle: c.id})

	if c.invalidated {
		return
	}
	c.timers = append(c.timers, e.sched.AfterFunc(e.opts.FadeIn, func() {
		if c.invalidated {
			return
		}
		e.current = nil
		e.state = StateIdle
		e.emit(Event{Kind: EventComplete, Scene: c.next, FromSceneID: c.from, Cycle: c.id})
	}))
}

// Cancel abandons the running cycle and forces the engine idle and visible. Continuations of the
// abandoned cycle become no-ops.
func (e *Engine) Cancel() {
	if e.current != nil {
		e.current.stop()
		e.current = nil
	}
	e.state = StateIdle
	e.opacity = 1
}

// PreloadImage warms the cache for path without waiting for it.
func (e *Engine) PreloadImage(path string) {
	e.preloader.Preload(path, nil)
}

func (e *Engine) emit(ev Event) {
	if e.listener != nil {
		e.listener.OnTransitionEvent(ev)
	}
}

func sceneID(s *domain.Scene) string {
	if s == nil {
		return ""
	}
	return s.ID
}
