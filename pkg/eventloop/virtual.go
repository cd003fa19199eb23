package eventloop

import (
	"sort"
	"time"
)

// Virtual is a deterministic Scheduler driven by the caller. Time only moves on Advance and
// background work only runs on RunBackground. It is not safe for concurrent use.
type Virtual struct {
	now        time.Duration
	seq        int
	timers     []*virtualTimer
	posted     []func()
	background []func() func()
}

type virtualTimer struct {
	due     time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *virtualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewVirtual returns a virtual clock at zero.
func NewVirtual() *Virtual {
	return &Virtual{}
}

// Now returns the virtual time elapsed since creation.
func (v *Virtual) Now() time.Duration {
	return v.now
}

// AfterFunc implements Scheduler.
func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	v.seq++
	t := &virtualTimer{due: v.now + max(d, 0), seq: v.seq, fn: fn}
	v.timers = append(v.timers, t)
	return t
}

// Post implements Scheduler.
func (v *Virtual) Post(fn func()) {
	v.posted = append(v.posted, fn)
}

// Go implements Scheduler. The work is parked until RunBackground.
func (v *Virtual) Go(work func() (then func())) {
	v.background = append(v.background, work)
}

// Flush runs posted callbacks, including ones they post, until the queue is empty.
func (v *Virtual) Flush() {
	for len(v.posted) > 0 {
		fn := v.posted[0]
		v.posted = v.posted[1:]
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in order of deadline then creation.
func (v *Virtual) Advance(d time.Duration) {
	target := v.now + d
	for {
		v.Flush()
		t := v.nextDue(target)
		if t == nil {
			break
		}
		v.now = t.due
		t.fired = true
		t.fn()
	}
	v.now = target
	v.Flush()
}

func (v *Virtual) nextDue(target time.Duration) *virtualTimer {
	live := v.timers[:0]
	for _, t := range v.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	v.timers = live
	sort.Slice(v.timers, func(i, j int) bool {
		if v.timers[i].due != v.timers[j].due {
			return v.timers[i].due < v.timers[j].due
		}
		return v.timers[i].seq < v.timers[j].seq
	})
	if len(v.timers) == 0 || v.timers[0].due > target {
		return nil
	}
	return v.timers[0]
}

// RunBackground completes all parked background work, posting each continuation back, then flushes.
func (v *Virtual) RunBackground() {
	for len(v.background) > 0 {
		jobs := v.background
		v.background = nil
		for _, work := range jobs {
			if then := work(); then != nil {
				v.Post(then)
			}
		}
		v.Flush()
	}
}

// PendingBackground reports how many background jobs are parked.
func (v *Virtual) PendingBackground() int {
	return len(v.background)
}

// PendingTimers reports how many timers are armed.
func (v *Virtual) PendingTimers() int {
	n := 0
	for _, t := range v.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
