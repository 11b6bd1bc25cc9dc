package selection

import (
	"context"

	"github.com/nodepool-project/nodepool/pkg/models"
)

// EndpointRanker scores candidate endpoints based on their probed health. The
// higher the rank, the more preferable an endpoint is to serve requests.
// A negative rank means the endpoint must not be selected.
type EndpointRanker interface {
	RankEndpoints(ctx context.Context, healths []models.EndpointHealth) []EndpointRank
}

// EndpointRank pairs an endpoint's probed health with its rank.
type EndpointRank struct {
	Health models.EndpointHealth
	Rank   int
}

const (
	// The endpoint is known to be unusable, e.g. unreachable or running an
	// incompatible version.
	RankUnsuitable int = -1
	// Nothing is known against the endpoint, but nothing in its favor either.
	RankPossible int = 0
	// The endpoint is known to be healthy and should be preferred.
	RankPreferred int = 10
)

// MeetsRequirement returns whether the endpoint is usable at all.
func (r EndpointRank) MeetsRequirement() bool {
	return r.Rank > RankUnsuitable
}
