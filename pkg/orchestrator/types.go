package orchestrator

import (
	"context"

	"github.com/nodepool-project/nodepool/pkg/requests"
	"github.com/nodepool-project/nodepool/pkg/selection"
)

// EndpointSelector is the slice of selection.Selector the orchestrator needs.
type EndpointSelector interface {
	Select(ctx context.Context) (string, error)
	MarkUnhealthy(endpoint string)
	ClearCached()
	Thresholds() *selection.Thresholds
}

// RequestClient performs one request attempt against one endpoint.
type RequestClient interface {
	Do(ctx context.Context, endpoint string, d requests.Descriptor) (*requests.Envelope, error)
}

// RegressedModeProvider reports whether the whole fleet is known to be behind.
// While regressed, response staleness is not treated as a failure: there is
// nowhere healthier to fail over to.
type RegressedModeProvider interface {
	IsRegressed(ctx context.Context) bool
}

// RegressedModeFunc adapts a plain function to RegressedModeProvider.
type RegressedModeFunc func(ctx context.Context) bool

func (f RegressedModeFunc) IsRegressed(ctx context.Context) bool {
	return f(ctx)
}

// compile-time interface check
var _ RegressedModeProvider = (RegressedModeFunc)(nil)
