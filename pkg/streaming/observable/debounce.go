package observable

import (
	"sync"
	"time"

	"github.com/vnykmshr/rxflow/pkg/common/validation"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
)

// Debounce forwards a value only once d has passed without another value
// arriving; each new value restarts the quiet period and replaces the
// pending one. A pending value is discarded, not flushed, when the source
// completes or fails.
//
// Debounce panics with a ValidationError if d is negative.
func Debounce[T any](d time.Duration, opts ...Option) Operator[T, T] {
	if err := validation.ValidateNonNegativeDuration("observable", "debounce duration", d); err != nil {
		panic(err)
	}
	return func(src Observable[T]) Observable[T] {
		return Create(func(obs Observer[T], sub *Subscription) {
			o := resolve(opts)
			db := &debouncer[T]{obs: obs}
			sub.Add(db.stop)

			src.subscribeWith(Handlers[T]{
				Next: func(v T) {
					db.mu.Lock()
					if db.timer != nil {
						db.timer.Stop()
					}
					db.pending, db.hasPending = v, true
					db.gen++
					gen := db.gen
					db.timer = o.sched.AfterFunc(d, func() { db.fire(gen) })
					db.mu.Unlock()
				},
				Error: func(err error) {
					db.stop()
					obs.OnError(err)
				},
				Complete: func() {
					db.stop()
					obs.OnComplete()
				},
			}, sub)
		})
	}
}

type debouncer[T any] struct {
	obs Observer[T]

	mu         sync.Mutex
	timer      scheduler.Timer
	pending    T
	hasPending bool
	gen        uint64
}

// fire emits the pending value if no newer value superseded it.
func (db *debouncer[T]) fire(gen uint64) {
	db.mu.Lock()
	if gen != db.gen || !db.hasPending {
		db.mu.Unlock()
		return
	}
	v := db.pending
	var zero T
	db.pending, db.hasPending = zero, false
	db.timer = nil
	db.mu.Unlock()

	db.obs.OnNext(v)
}

func (db *debouncer[T]) stop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	var zero T
	db.pending, db.hasPending = zero, false
	db.gen++
}
