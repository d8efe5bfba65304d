package observable

import "sync"

// Share multicasts src: the first subscriber activates it, later subscribers
// join the running activation and only see values emitted after they joined,
// and the activation is cancelled when the last subscriber leaves. Once the
// shared activation terminates, the next subscriber starts a new one.
func Share[T any](src Observable[T]) Observable[T] {
	s := &shared[T]{src: src}
	return Create(s.subscribe)
}

type shareEntry[T any] struct {
	id  uint64
	obs Observer[T]
}

type shared[T any] struct {
	src Observable[T]

	mu        sync.Mutex
	observers []shareEntry[T]
	nextID    uint64
	upstream  *Subscription
}

func (s *shared[T]) subscribe(obs Observer[T], sub *Subscription) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, shareEntry[T]{id: id, obs: obs})
	var up *Subscription
	if s.upstream == nil {
		up = NewSubscription()
		s.upstream = up
	}
	s.mu.Unlock()

	sub.Add(func() { s.leave(id) })

	if up != nil {
		s.src.subscribeWith(Handlers[T]{
			Next: func(v T) {
				for _, o := range s.snapshot() {
					o.OnNext(v)
				}
			},
			Error: func(err error) {
				for _, o := range s.terminate(up) {
					o.OnError(err)
				}
			},
			Complete: func() {
				for _, o := range s.terminate(up) {
					o.OnComplete()
				}
			},
		}, up)
	}
}

func (s *shared[T]) snapshot() []Observer[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer[T], len(s.observers))
	for i, e := range s.observers {
		out[i] = e.obs
	}
	return out
}

// terminate detaches every observer from the finished activation up and
// returns them.
func (s *shared[T]) terminate(up *Subscription) []Observer[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstream != up {
		return nil
	}
	out := make([]Observer[T], len(s.observers))
	for i, e := range s.observers {
		out[i] = e.obs
	}
	s.observers = nil
	s.upstream = nil
	return out
}

func (s *shared[T]) leave(id uint64) {
	s.mu.Lock()
	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			break
		}
	}
	var up *Subscription
	if len(s.observers) == 0 && s.upstream != nil {
		up = s.upstream
		s.upstream = nil
	}
	s.mu.Unlock()

	if up != nil {
		up.Cancel()
	}
}
