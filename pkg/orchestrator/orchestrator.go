package orchestrator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/nodepool-project/nodepool/pkg/lib/backoff"
	"github.com/nodepool-project/nodepool/pkg/requests"
	"github.com/nodepool-project/nodepool/pkg/selection"
)

const (
	// DefaultSelectionRequestRetries is the per-endpoint retry budget before
	// the endpoint is abandoned and selection reruns.
	DefaultSelectionRequestRetries = 5

	// DefaultMaxRequestsForTrue404 is how many not-found responses, each from
	// a freshly selected endpoint, are tolerated before a 404 is accepted as
	// genuine absence.
	DefaultMaxRequestsForTrue404 = 5
)

type Params struct {
	Selector EndpointSelector
	Client   RequestClient

	// Regressed suppresses staleness failures fleet-wide. Optional.
	Regressed RegressedModeProvider

	// Backoff waits between attempts. Defaults to no wait, matching the
	// immediate-retry behavior callers of Fetch expect.
	Backoff backoff.Backoff

	// SelectionRequestRetries overrides the per-endpoint retry budget.
	SelectionRequestRetries int

	// MaxRequestsForTrue404 overrides the not-found budget.
	MaxRequestsForTrue404 int
}

// Orchestrator drives one logical request through selection, the request
// client and response validation, retrying and reselecting within explicit
// budgets. Failures have different likely causes and get different treatment:
// a transient blip retries the same endpoint, repeated failures or staleness
// abandon the endpoint, and not-found responses are re-asked on other
// endpoints a bounded number of times before being believed.
type Orchestrator struct {
	selector  EndpointSelector
	client    RequestClient
	regressed RegressedModeProvider
	backoff   backoff.Backoff
	retries   int
	max404s   int
}

func New(params Params) *Orchestrator {
	bo := params.Backoff
	if bo == nil {
		bo = backoff.NewNoop()
	}
	retries := params.SelectionRequestRetries
	if retries <= 0 {
		retries = DefaultSelectionRequestRetries
	}
	max404s := params.MaxRequestsForTrue404
	if max404s <= 0 {
		max404s = DefaultMaxRequestsForTrue404
	}
	return &Orchestrator{
		selector:  params.Selector,
		client:    params.Client,
		regressed: params.Regressed,
		backoff:   bo,
		retries:   retries,
		max404s:   max404s,
	}
}

// Fetch performs one logical request. It returns the response payload on
// success, nil data and nil error when the fleet was tried reasonably hard but
// produced no usable data (including a believed 404), and an error only for
// malformed descriptors, context cancellation, or total selection failure
// before any request could be issued.
func (o *Orchestrator) Fetch(ctx context.Context, d requests.Descriptor) (json.RawMessage, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	// attempts counts retries against the endpoint in lastEndpoint only; it
	// resets whenever selection lands somewhere else. requestsIssued decides
	// whether a later selection failure is terminal or just "no data".
	var attempts, notFounds, requestsIssued int
	var lastEndpoint string

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		endpoint, err := o.selector.Select(ctx)
		if err != nil {
			var noHealthy selection.ErrNoHealthyEndpoints
			if errors.As(err, &noHealthy) && requestsIssued > 0 {
				log.Ctx(ctx).Warn().Str("path", d.Path).Int("requests", requestsIssued).
					Msg("no endpoints left to try, returning no data")
				return nil, nil
			}
			return nil, err
		}
		if endpoint != lastEndpoint {
			attempts = 0
			lastEndpoint = endpoint
		}

		env, err := o.client.Do(ctx, endpoint, d)
		requestsIssued++

		var notFound requests.NotFoundError
		switch {
		case errors.As(err, &notFound):
			notFounds++
			if notFounds > o.max404s {
				log.Ctx(ctx).Debug().Str("path", d.Path).Int("notFounds", notFounds).
					Msg("not found on enough endpoints to be believed")
				return nil, nil
			}
			// ask a different endpoint: this node may simply not have
			// indexed the data yet
			o.selector.MarkUnhealthy(endpoint)
			o.selector.ClearCached()
			continue

		case err != nil:
			log.Ctx(ctx).Debug().Err(err).Str("endpoint", endpoint).Str("path", d.Path).
				Int("attempts", attempts).Msg("request attempt failed")
			if !o.retryOrAbandon(&attempts, endpoint) {
				continue
			}
			o.backoff.Backoff(ctx, attempts)
			continue
		}

		if o.isStale(ctx, env) {
			log.Ctx(ctx).Debug().Str("endpoint", endpoint).Str("path", d.Path).
				Msg("response failed staleness validation")
			if !o.retryOrAbandon(&attempts, endpoint) {
				continue
			}
			o.backoff.Backoff(ctx, attempts)
			continue
		}

		return env.Data, nil
	}
}

// retryOrAbandon increments the attempt counter. Within budget it reports
// true and the caller retries the same cached endpoint. Past budget the
// endpoint is marked unhealthy and the selection cache cleared, so the next
// loop iteration runs a fresh probe round.
func (o *Orchestrator) retryOrAbandon(attempts *int, endpoint string) bool {
	*attempts++
	if *attempts <= o.retries {
		return true
	}
	o.selector.MarkUnhealthy(endpoint)
	o.selector.ClearCached()
	return false
}

// isStale validates a response's indexing heights against the live
// thresholds. Missing heights count as maximally stale: a node that stops
// reporting them is not given the benefit of the doubt. Regressed mode
// disables the whole check.
func (o *Orchestrator) isStale(ctx context.Context, env *requests.Envelope) bool {
	if o.regressed != nil && o.regressed.IsRegressed(ctx) {
		return false
	}

	thresholds := o.selector.Thresholds()
	blocksBehind := env.BlocksBehind()
	if blocksBehind == nil {
		return true
	}
	if *blocksBehind > thresholds.BlockDiff() {
		return true
	}

	if maxSlotDiff := thresholds.SlotDiffPlays(); maxSlotDiff != nil {
		slotsBehind := env.SlotsBehindPlays()
		if slotsBehind == nil || *slotsBehind > *maxSlotDiff {
			return true
		}
	}
	return false
}
