package observabletest

import (
	"sync"
	"time"

	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

// Source is a cold scripted source: every activation replays the events,
// each one at its offset from the activation time, on the scheduler.
type Source[T any] struct {
	sched  scheduler.Scheduler
	events []Event[T]

	mu          sync.Mutex
	activations []time.Time
	cancels     int
}

// Cold returns a Source replaying events on sched.
func Cold[T any](sched scheduler.Scheduler, events ...Event[T]) *Source[T] {
	return &Source[T]{sched: sched, events: events}
}

// Observable returns the source as an Observable.
func (s *Source[T]) Observable() observable.Observable[T] {
	return observable.Create(func(obs observable.Observer[T], sub *observable.Subscription) {
		s.mu.Lock()
		s.activations = append(s.activations, s.sched.Now())
		s.mu.Unlock()

		sub.Add(func() {
			s.mu.Lock()
			s.cancels++
			s.mu.Unlock()
		})
		for _, e := range s.events {
			n := e.Notification
			t := s.sched.AfterFunc(e.At, func() { n.Accept(obs) })
			sub.Add(func() { t.Stop() })
		}
	})
}

// Activations returns the scheduler time of every activation.
func (s *Source[T]) Activations() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.activations))
	copy(out, s.activations)
	return out
}

// Unsubscriptions returns how many activations have ended, by cancellation
// or by termination.
func (s *Source[T]) Unsubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}
