package observable

import "sync"

// SwitchMap projects every value to an inner Observable and mirrors only the
// most recent one. The previous inner activation is cancelled before the
// next is started, so a late result of a superseded inner, such as a stale
// HTTP response, never reaches downstream. It completes once the source and
// the current inner have both completed; an error from either fails it.
func SwitchMap[T, U any](project func(T) Observable[U]) Operator[T, U] {
	return func(src Observable[T]) Observable[U] {
		return Create(func(obs Observer[U], sub *Subscription) {
			var (
				mu          sync.Mutex
				outerDone   bool
				innerActive bool
				innerSeq    uint64
			)
			inner := &serial{}
			sub.Add(inner.cancel)

			innerDone := func(seq uint64) {
				mu.Lock()
				if seq != innerSeq {
					mu.Unlock()
					return
				}
				innerActive = false
				finished := outerDone
				mu.Unlock()
				if finished {
					obs.OnComplete()
				}
			}

			src.subscribeChild(Handlers[T]{
				Next: func(v T) {
					next, err := protect("switchMap", func() Observable[U] { return project(v) })
					if err != nil {
						obs.OnError(err)
						return
					}

					mu.Lock()
					innerSeq++
					seq := innerSeq
					innerActive = true
					mu.Unlock()

					child := NewSubscription()
					if !inner.set(child) {
						return
					}
					next.subscribeWith(Handlers[U]{
						Next:     obs.OnNext,
						Error:    obs.OnError,
						Complete: func() { innerDone(seq) },
					}, child)
				},
				Error: obs.OnError,
				Complete: func() {
					mu.Lock()
					outerDone = true
					finished := !innerActive
					mu.Unlock()
					if finished {
						obs.OnComplete()
					}
				},
			}, sub)
		})
	}
}
