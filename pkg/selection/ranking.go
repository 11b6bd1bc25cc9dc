package selection

import (
	"context"

	"github.com/Masterminds/semver"
	"github.com/rs/zerolog/log"

	"github.com/nodepool-project/nodepool/pkg/models"
)

// Chain combines multiple rankers by summing their ranks. An endpoint marked
// unsuitable by any ranker stays unsuitable regardless of the other scores.
type Chain struct {
	rankers []EndpointRanker
}

func NewChain(rankers ...EndpointRanker) *Chain {
	return &Chain{rankers: rankers}
}

func (c *Chain) Add(ranker ...EndpointRanker) {
	c.rankers = append(c.rankers, ranker...)
}

func (c *Chain) RankEndpoints(ctx context.Context, healths []models.EndpointHealth) []EndpointRank {
	sums := make([]int, len(healths))
	unsuitable := make([]bool, len(healths))
	for _, ranker := range c.rankers {
		for i, rank := range ranker.RankEndpoints(ctx, healths) {
			sums[i] += rank.Rank
			if !rank.MeetsRequirement() {
				unsuitable[i] = true
			}
		}
	}

	ranks := make([]EndpointRank, len(healths))
	for i, health := range healths {
		rank := sums[i]
		if unsuitable[i] {
			rank = RankUnsuitable
		}
		ranks[i] = EndpointRank{Health: health, Rank: rank}
	}
	return ranks
}

// ReachabilityRanker filters out endpoints whose probe failed.
type ReachabilityRanker struct{}

func NewReachabilityRanker() *ReachabilityRanker {
	return &ReachabilityRanker{}
}

func (s *ReachabilityRanker) RankEndpoints(ctx context.Context, healths []models.EndpointHealth) []EndpointRank {
	ranks := make([]EndpointRank, len(healths))
	for i, health := range healths {
		rank := RankPreferred
		if !health.Reachable {
			log.Ctx(ctx).Trace().Str("endpoint", health.Endpoint).Err(health.Err).
				Msg("filtering unreachable endpoint")
			rank = RankUnsuitable
		}
		ranks[i] = EndpointRank{Health: health, Rank: rank}
	}
	return ranks
}

// StalenessRanker demotes endpoints whose block indexing lags beyond the
// configured threshold. Endpoints that report no block heights are not
// demoted: auxiliary nodes legitimately omit them, and reachability is the
// stronger signal at selection time. Lagging nodes stay selectable (possible,
// not unsuitable) so that a fully degraded fleet can still serve.
type StalenessRanker struct {
	thresholds *Thresholds
}

func NewStalenessRanker(thresholds *Thresholds) *StalenessRanker {
	return &StalenessRanker{thresholds: thresholds}
}

func (s *StalenessRanker) RankEndpoints(ctx context.Context, healths []models.EndpointHealth) []EndpointRank {
	maxDiff := s.thresholds.BlockDiff()
	ranks := make([]EndpointRank, len(healths))
	for i, health := range healths {
		rank := RankPreferred
		if behind := health.Report.BlocksBehind(); behind != nil && *behind > maxDiff {
			log.Ctx(ctx).Debug().Str("endpoint", health.Endpoint).Int64("blocksBehind", *behind).
				Msgf("endpoint lags more than %d blocks", maxDiff)
			rank = RankPossible
		}
		ranks[i] = EndpointRank{Health: health, Rank: rank}
	}
	return ranks
}

// MinVersionRanker filters out endpoints running a version older than the
// required minimum. Endpoints with missing or unparseable versions rank as
// possible rather than unsuitable.
type MinVersionRanker struct {
	minVersion *semver.Version
}

func NewMinVersionRanker(minVersion *semver.Version) *MinVersionRanker {
	return &MinVersionRanker{minVersion: minVersion}
}

func (s *MinVersionRanker) RankEndpoints(ctx context.Context, healths []models.EndpointHealth) []EndpointRank {
	ranks := make([]EndpointRank, len(healths))
	for i, health := range healths {
		rank := RankPreferred
		reported, err := semver.NewVersion(health.Report.Version)
		if err != nil {
			rank = RankPossible
		} else if reported.LessThan(s.minVersion) {
			log.Ctx(ctx).Debug().Str("endpoint", health.Endpoint).Str("version", health.Report.Version).
				Msgf("filtering endpoint below minimum version %s", s.minVersion)
			rank = RankUnsuitable
		}
		ranks[i] = EndpointRank{Health: health, Rank: rank}
	}
	return ranks
}

// compile-time interface checks
var (
	_ EndpointRanker = (*Chain)(nil)
	_ EndpointRanker = (*ReachabilityRanker)(nil)
	_ EndpointRanker = (*StalenessRanker)(nil)
	_ EndpointRanker = (*MinVersionRanker)(nil)
)
