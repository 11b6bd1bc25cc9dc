package models

import (
	"github.com/Masterminds/semver"
)

// UnknownVersion is used in place of versions that nodes failed to report or
// that do not parse as semver.
var UnknownVersion = semver.MustParse("0.0.0")

// HealthReport is the JSON body returned by a discovery node's verbose health
// check. The same fields are embedded in every application response envelope,
// which is what allows post-request staleness validation without a second
// round trip.
//
// All numeric fields are pointers: nodes that do not index a given stream omit
// the field entirely, and consumers must distinguish "zero lag" from
// "not reported".
type HealthReport struct {
	LatestIndexedBlock     *int64 `json:"latest_indexed_block,omitempty"`
	LatestChainBlock       *int64 `json:"latest_chain_block,omitempty"`
	LatestIndexedSlotPlays *int64 `json:"latest_indexed_slot_plays,omitempty"`
	LatestChainSlotPlays   *int64 `json:"latest_chain_slot_plays,omitempty"`
	Version                string `json:"version,omitempty"`
}

// BlocksBehind returns how far the node's block indexing lags the chain head,
// or nil if the node did not report both heights.
func (r HealthReport) BlocksBehind() *int64 {
	if r.LatestIndexedBlock == nil || r.LatestChainBlock == nil {
		return nil
	}
	diff := *r.LatestChainBlock - *r.LatestIndexedBlock
	return &diff
}

// SlotsBehindPlays returns how far the node's plays slot indexing lags the
// chain, or nil if the node did not report both slots.
func (r HealthReport) SlotsBehindPlays() *int64 {
	if r.LatestIndexedSlotPlays == nil || r.LatestChainSlotPlays == nil {
		return nil
	}
	diff := *r.LatestChainSlotPlays - *r.LatestIndexedSlotPlays
	return &diff
}

// EndpointHealth is the outcome of probing a single endpoint. Created fresh on
// every probe and never mutated.
type EndpointHealth struct {
	// Endpoint is the probed node's base URL.
	Endpoint string

	// Reachable is false when the probe failed for any reason, including
	// timeouts, non-200 statuses and undecodable bodies.
	Reachable bool

	// Report holds the node's health report. Only meaningful when Reachable.
	Report HealthReport

	// Err carries the probe failure cause when the endpoint was unreachable.
	Err error
}

// SemVer parses the reported version, falling back to UnknownVersion so that
// nodes with missing or garbage versions sort below any real release.
func (h EndpointHealth) SemVer() *semver.Version {
	v, err := semver.NewVersion(h.Report.Version)
	if err != nil {
		return UnknownVersion
	}
	return v
}
