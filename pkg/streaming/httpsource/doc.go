// Package httpsource exposes JSON HTTP endpoints as cold observables.
//
// Each activation issues a single GET request and emits exactly one Next
// carrying the decoded body followed by Complete, or a single Error carrying
// an *errors.TransportError when the request fails, the server answers with
// a non-2xx status, or the body does not decode. Cancelling the subscription
// cancels the request; a response that arrives anyway is never delivered.
//
//	client, err := httpsource.NewClient("http://localhost:3000")
//	if err != nil {
//		return err
//	}
//	users := httpsource.List[User](client, "users", nil)
//	posts := httpsource.List[Post](client, "posts", url.Values{"userId": {"1"}})
//	user := httpsource.Get[User](client, "users", 1)
//
// Combined with observable.SwitchMap, only the response to the latest
// request is delivered, however the responses are ordered on the wire.
package httpsource
