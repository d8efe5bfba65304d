/*
Package streaming groups rxflow's push-based stream packages.

  - observable: the core types, sources and operators
  - lifecycle: ownership of subscriptions by a consumer
  - httpsource: JSON API requests as single-value observables
  - redissource: Redis pub/sub as an observable and a sink

A value flows from a source, through a pipeline of operators, to the
handlers of a subscription. Nothing runs until a subscription is made,
and cancelling it releases every timer, request and connection the
activation started.
*/
package streaming
