package probe

import (
	"context"

	"github.com/nodepool-project/nodepool/pkg/models"
)

// VerboseHealthCheckPath is the well-known status route every discovery node
// exposes.
const VerboseHealthCheckPath = "/health_check/verbose"

// Prober issues a lightweight status request against a candidate endpoint.
// Implementations must not return errors for network failures: an unreachable
// endpoint is reported as a not-reachable EndpointHealth so that selection can
// rank it rather than abort.
type Prober interface {
	Probe(ctx context.Context, endpoint string) models.EndpointHealth
}
