// Package observabletest provides scripted sources and recording observers
// for testing pipelines against a scheduler.Virtual clock.
package observabletest

import (
	"sync"
	"time"

	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// Event is a notification stamped with its offset from a reference time.
type Event[T any] struct {
	At time.Duration
	observable.Notification[T]
}

// NextAt returns a Next event at offset at.
func NextAt[T any](at time.Duration, v T) Event[T] {
	return Event[T]{At: at, Notification: observable.NewNext(v)}
}

// ErrorAt returns an Error event at offset at.
func ErrorAt[T any](at time.Duration, err error) Event[T] {
	return Event[T]{At: at, Notification: observable.NewError[T](err)}
}

// CompleteAt returns a Complete event at offset at.
func CompleteAt[T any](at time.Duration) Event[T] {
	return Event[T]{At: at, Notification: observable.NewComplete[T]()}
}

// Recorder is an Observer keeping every notification it receives together
// with the scheduler time elapsed since the recorder was created.
type Recorder[T any] struct {
	sched scheduler.Scheduler
	start time.Time

	mu     sync.Mutex
	events []Event[T]
}

// NewRecorder returns a Recorder stamping events with sched's clock.
func NewRecorder[T any](sched scheduler.Scheduler) *Recorder[T] {
	return &Recorder[T]{sched: sched, start: sched.Now()}
}

func (r *Recorder[T]) OnNext(v T) {
	r.record(observable.NewNext(v))
}

func (r *Recorder[T]) OnError(err error) {
	r.record(observable.NewError[T](err))
}

func (r *Recorder[T]) OnComplete() {
	r.record(observable.NewComplete[T]())
}

func (r *Recorder[T]) record(n observable.Notification[T]) {
	at := r.sched.Now().Sub(r.start)
	r.mu.Lock()
	r.events = append(r.events, Event[T]{At: at, Notification: n})
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder[T]) Events() []Event[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event[T], len(r.events))
	copy(out, r.events)
	return out
}

// Values returns the values of the recorded Next notifications.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, e := range r.events {
		if e.Kind == observable.KindNext {
			out = append(out, e.Value)
		}
	}
	return out
}

// Kinds returns the kind of every recorded notification in order.
func (r *Recorder[T]) Kinds() []observable.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observable.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Err returns the payload of the recorded Error notification, if any.
func (r *Recorder[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == observable.KindError {
			return e.Err
		}
	}
	return nil
}

// Completed reports whether a Complete notification was recorded.
func (r *Recorder[T]) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == observable.KindComplete {
			return true
		}
	}
	return false
}

// Terminated reports whether an Error or Complete notification was recorded.
func (r *Recorder[T]) Terminated() bool {
	return r.Completed() || r.Err() != nil
}
