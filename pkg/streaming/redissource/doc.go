// Package redissource bridges Redis pub/sub into observables.
//
// Subscribe turns one or more channels (or patterns) into a cold
// Observable of Message: every activation opens its own PubSub
// connection, waits for the subscription to be confirmed, and closes it
// when the subscription is cancelled. Messages are delivered through a
// scheduler, so handlers never run concurrently with each other.
//
// Publisher is the other direction: a lifecycle.Sink that JSON-encodes
// every value it is given and publishes it to a channel.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	counts := redissource.Decode[int]()(redissource.Subscribe(rdb, []string{"counter"}))
//	lifecycle.Start(scope, counts, observable.Handlers[int]{Next: render})
package redissource
