package requests

import (
	"context"

	"github.com/rs/zerolog/log"
)

// RequestEvent describes one completed (or failed) request for observability
// purposes.
type RequestEvent struct {
	Endpoint           string
	Pathname           string
	QueryString        string
	RequestMethod      string
	Status             int
	ResponseTimeMillis int64
	Signer             string
	Signature          string
}

// Observer receives a RequestEvent after every request attempt. Observers are
// best-effort: a panicking observer is logged and swallowed, and can never
// affect the request outcome.
type Observer interface {
	OnRequest(event RequestEvent)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(event RequestEvent)

func (f ObserverFunc) OnRequest(event RequestEvent) {
	f(event)
}

func notifyObserver(ctx context.Context, observer Observer, event RequestEvent) {
	if observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Warn().Interface("panic", r).Msg("request observer panicked")
		}
	}()
	observer.OnRequest(event)
}

// compile-time interface check
var _ Observer = (ObserverFunc)(nil)
