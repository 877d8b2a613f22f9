// Package sched is a small cooperative scheduler: a timer queue plus a
// per-frame queue, both with cancellable handles. It decouples the core's
// debounce/coalesce logic from any concrete event loop; the TUI drives it
// from bubbletea ticks, tests drive it manually with Advance and Frame.
// Everything runs on the caller's goroutine.
package sched

import "time"

// Handle cancels one scheduled task.
type Handle struct {
	cancelled bool
	fire      func()
}

// Cancel prevents the task from running. Safe to call more than once, and
// after the task has fired.
func (h *Handle) Cancel() {
	if h != nil {
		h.cancelled = true
	}
}

type timerTask struct {
	due time.Duration
	h   *Handle
}

// Scheduler owns the queues. The zero value is not usable; call New.
type Scheduler struct {
	clock  time.Duration
	timers []timerTask
	frames []*Handle
}

// New returns an empty scheduler with its clock at zero.
func New() *Scheduler { return &Scheduler{} }

// Now is the scheduler's virtual clock, advanced by Advance.
func (s *Scheduler) Now() time.Duration { return s.clock }

// After runs fn once d from now. The returned handle cancels it.
func (s *Scheduler) After(d time.Duration, fn func()) *Handle {
	h := &Handle{fire: fn}
	s.timers = append(s.timers, timerTask{due: s.clock + d, h: h})
	return h
}

// EveryFrame runs fn on each Frame call until cancelled.
func (s *Scheduler) EveryFrame(fn func()) *Handle {
	h := &Handle{fire: fn}
	s.frames = append(s.frames, h)
	return h
}

// Advance moves the clock forward and fires every due, uncancelled timer in
// due order. Timers scheduled by fired callbacks are honored within the
// same call when they fall inside the window.
func (s *Scheduler) Advance(d time.Duration) {
	target := s.clock + d
	for {
		idx := -1
		var best time.Duration
		for i, t := range s.timers {
			if t.due <= target && (idx < 0 || t.due < best) {
				idx = i
				best = t.due
			}
		}
		if idx < 0 {
			break
		}
		t := s.timers[idx]
		s.timers = append(s.timers[:idx], s.timers[idx+1:]...)
		if s.clock < t.due {
			s.clock = t.due
		}
		if !t.h.cancelled {
			t.h.cancelled = true // one-shot; Pending reports false after firing
			t.h.fire()
		}
	}
	s.clock = target
}

// Frame runs the per-frame queue once, dropping cancelled entries.
func (s *Scheduler) Frame() {
	keep := s.frames[:0]
	for _, h := range s.frames {
		if h.cancelled {
			continue
		}
		keep = append(keep, h)
	}
	s.frames = keep
	for _, h := range s.frames {
		if !h.cancelled {
			h.fire()
		}
	}
}

// Debouncer coalesces repeated triggers: only the latest fn within the
// window runs, once the window elapses with no further trigger.
type Debouncer struct {
	s      *Scheduler
	window time.Duration
	h      *Handle
}

// NewDebouncer returns a debouncer over the scheduler with a fixed window.
func NewDebouncer(s *Scheduler, window time.Duration) *Debouncer {
	return &Debouncer{s: s, window: window}
}

// Trigger schedules fn after the window, replacing any pending trigger: a
// later call always supersedes, never queues behind, an earlier one.
func (d *Debouncer) Trigger(fn func()) {
	d.h.Cancel()
	d.h = d.s.After(d.window, fn)
}

// Pending reports whether a trigger is armed.
func (d *Debouncer) Pending() bool { return d.h != nil && !d.h.cancelled }

// Flush runs a pending trigger immediately.
func (d *Debouncer) Flush() {
	if d.h != nil && !d.h.cancelled {
		h := d.h
		d.h = nil
		h.cancelled = true
		h.fire()
	}
}

// Cancel drops any pending trigger.
func (d *Debouncer) Cancel() { d.h.Cancel() }
