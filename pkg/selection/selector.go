package selection

import (
	"context"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/slices"

	"github.com/nodepool-project/nodepool/pkg/models"
	"github.com/nodepool-project/nodepool/pkg/probe"
)

const (
	// DefaultReselectTimeout is how long a selected endpoint is reused before
	// the next Select triggers a fresh probe round.
	DefaultReselectTimeout = 10 * time.Minute

	// DefaultUnhealthyBlockDiff is the default maximum tolerated block
	// indexing lag.
	DefaultUnhealthyBlockDiff int64 = 15
)

type SelectorParams struct {
	// Endpoints is the full set of candidate base URLs.
	Endpoints []string

	// Allowlist, when non-empty, restricts candidates to its members.
	Allowlist []string

	// Denylist excludes candidates outright.
	Denylist []string

	// Prober issues health checks. Defaults to an HTTPProber.
	Prober probe.Prober

	// Ranker scores probed candidates. Defaults to a chain of reachability
	// and staleness rankers, plus a minimum-version ranker when MinVersion
	// is set.
	Ranker EndpointRanker

	// MinVersion, when non-nil, filters out endpoints running older releases.
	// Only consulted when Ranker is left nil.
	MinVersion *semver.Version

	// ReselectTimeout bounds how long a cached selection stays valid.
	// Defaults to DefaultReselectTimeout.
	ReselectTimeout time.Duration

	// UnhealthyBlockDiff is the staleness threshold for block indexing.
	// Defaults to DefaultUnhealthyBlockDiff.
	UnhealthyBlockDiff int64

	// UnhealthySlotDiffPlays is the staleness threshold for the plays slot
	// stream. Nil disables slot staleness checks entirely.
	UnhealthySlotDiffPlays *int64
}

// Selector owns all selection state: the cached endpoint, when it was chosen,
// and the set of endpoints that exhausted their retry budget. All mutation
// goes through Select, MarkUnhealthy, ClearCached and ResetUnhealthy; nothing
// else may touch this state.
type Selector struct {
	endpoints       []string
	allowlist       map[string]struct{}
	denylist        map[string]struct{}
	prober          probe.Prober
	ranker          EndpointRanker
	reselectTimeout time.Duration
	thresholds      *Thresholds

	mu         sync.Mutex
	current    string
	selectedAt time.Time
	unhealthy  map[string]struct{}
}

func NewSelector(params SelectorParams) *Selector {
	prober := params.Prober
	if prober == nil {
		prober = probe.NewHTTPProber(probe.HTTPProberParams{})
	}

	reselectTimeout := params.ReselectTimeout
	if reselectTimeout <= 0 {
		reselectTimeout = DefaultReselectTimeout
	}

	blockDiff := params.UnhealthyBlockDiff
	if blockDiff <= 0 {
		blockDiff = DefaultUnhealthyBlockDiff
	}
	thresholds := NewThresholds(blockDiff, params.UnhealthySlotDiffPlays)

	ranker := params.Ranker
	if ranker == nil {
		chain := NewChain(NewReachabilityRanker(), NewStalenessRanker(thresholds))
		if params.MinVersion != nil {
			chain.Add(NewMinVersionRanker(params.MinVersion))
		}
		ranker = chain
	}

	return &Selector{
		endpoints:       slices.Clone(params.Endpoints),
		allowlist:       toSet(params.Allowlist),
		denylist:        toSet(params.Denylist),
		prober:          prober,
		ranker:          ranker,
		reselectTimeout: reselectTimeout,
		thresholds:      thresholds,
		unhealthy:       make(map[string]struct{}),
	}
}

// Select returns the currently cached endpoint if it is still valid, and
// otherwise probes all eligible candidates concurrently and picks the best
// one. It only fails when zero usable endpoints exist.
func (s *Selector) Select(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		_, bad := s.unhealthy[s.current]
		if !bad && time.Since(s.selectedAt) < s.reselectTimeout {
			return s.current, nil
		}
		s.current = ""
	}

	candidates := s.eligible()
	if len(candidates) == 0 {
		return "", NewErrNoHealthyEndpoints(nil)
	}

	healths := s.probeAll(ctx, candidates)
	ranks := s.ranker.RankEndpoints(ctx, healths)

	usable := make([]EndpointRank, 0, len(ranks))
	var causes *multierror.Error
	for _, rank := range ranks {
		if rank.MeetsRequirement() {
			usable = append(usable, rank)
		} else if rank.Health.Err != nil {
			causes = multierror.Append(causes, errors.Wrap(rank.Health.Err, rank.Health.Endpoint))
		}
	}
	if len(usable) == 0 {
		return "", NewErrNoHealthyEndpoints(causes.ErrorOrNil())
	}

	sortRanks(usable)
	winner := usable[0]

	s.current = winner.Health.Endpoint
	s.selectedAt = time.Now()
	log.Ctx(ctx).Debug().
		Str("endpoint", s.current).
		Int("rank", winner.Rank).
		Int("candidates", len(candidates)).
		Msg("selected endpoint")
	return s.current, nil
}

// MarkUnhealthy permanently excludes an endpoint from selection. The unhealthy
// set is never pruned automatically; only ResetUnhealthy clears it.
func (s *Selector) MarkUnhealthy(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhealthy[endpoint] = struct{}{}
	if s.current == endpoint {
		s.current = ""
	}
}

// ClearCached drops the cached endpoint, forcing the next Select to run a
// fresh probe round. The unhealthy set is left intact.
func (s *Selector) ClearCached() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
}

// ResetUnhealthy empties the unhealthy set, readmitting every configured
// endpoint to future selection rounds.
func (s *Selector) ResetUnhealthy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhealthy = make(map[string]struct{})
}

// Thresholds exposes the live staleness thresholds so response validation uses
// the same values as selection scoring.
func (s *Selector) Thresholds() *Thresholds {
	return s.thresholds
}

// SetUnhealthyBlockDiff updates the block staleness threshold for both
// selection scoring and response validation.
func (s *Selector) SetUnhealthyBlockDiff(n int64) {
	s.thresholds.SetBlockDiff(n)
}

// SetUnhealthySlotDiffPlays updates the plays slot staleness threshold.
// Passing nil disables the slot check.
func (s *Selector) SetUnhealthySlotDiffPlays(n *int64) {
	s.thresholds.SetSlotDiffPlays(n)
}

func (s *Selector) eligible() []string {
	candidates := make([]string, 0, len(s.endpoints))
	for _, endpoint := range s.endpoints {
		if len(s.allowlist) > 0 {
			if _, ok := s.allowlist[endpoint]; !ok {
				continue
			}
		}
		if _, ok := s.denylist[endpoint]; ok {
			continue
		}
		if _, ok := s.unhealthy[endpoint]; ok {
			continue
		}
		candidates = append(candidates, endpoint)
	}
	return candidates
}

func (s *Selector) probeAll(ctx context.Context, endpoints []string) []models.EndpointHealth {
	healths := make([]models.EndpointHealth, len(endpoints))
	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			healths[i] = s.prober.Probe(ctx, endpoint)
		}(i, endpoint)
	}
	wg.Wait()
	return healths
}

// sortRanks orders usable endpoints best-first: higher rank, then lower block
// lag (unreported lag sorts as zero), then higher version, then endpoint URL
// as the final tie-break so selection is fully deterministic.
func sortRanks(ranks []EndpointRank) {
	slices.SortFunc(ranks, func(a, b EndpointRank) bool {
		if a.Rank != b.Rank {
			return a.Rank > b.Rank
		}
		aBehind, bBehind := lagOrZero(a.Health), lagOrZero(b.Health)
		if aBehind != bBehind {
			return aBehind < bBehind
		}
		aVer, bVer := a.Health.SemVer(), b.Health.SemVer()
		if !aVer.Equal(bVer) {
			return aVer.GreaterThan(bVer)
		}
		return a.Health.Endpoint < b.Health.Endpoint
	})
}

func lagOrZero(health models.EndpointHealth) int64 {
	if behind := health.Report.BlocksBehind(); behind != nil {
		return *behind
	}
	return 0
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
