package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nodepool-project/nodepool/pkg/models"
)

const DefaultProbeTimeout = 5 * time.Second

type HTTPProberParams struct {
	// Timeout bounds each probe request. Defaults to DefaultProbeTimeout.
	Timeout time.Duration

	// Client overrides the HTTP client used for probes. Defaults to a client
	// with an otel instrumented transport.
	Client *http.Client
}

// HTTPProber probes endpoints over their verbose health check route.
type HTTPProber struct {
	timeout time.Duration
	client  *http.Client
}

func NewHTTPProber(params HTTPProberParams) *HTTPProber {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := params.Client
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(nil,
				otelhttp.WithSpanOptions(
					trace.WithAttributes(
						attribute.String("client", "nodepool.probe"),
					),
				),
			),
		}
	}
	return &HTTPProber{
		timeout: timeout,
		client:  client,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, endpoint string) models.EndpointHealth {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr, err := url.JoinPath(endpoint, VerboseHealthCheckPath)
	if err != nil {
		return unreachable(endpoint, errors.Wrap(err, "building health check URL"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return unreachable(endpoint, errors.Wrap(err, "creating health check request"))
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		log.Ctx(ctx).Trace().Err(err).Str("endpoint", endpoint).Msg("endpoint unreachable")
		return unreachable(endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return unreachable(endpoint, fmt.Errorf("health check returned status %d", res.StatusCode))
	}

	var report models.HealthReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		return unreachable(endpoint, errors.Wrap(err, "decoding health report"))
	}

	return models.EndpointHealth{
		Endpoint:  endpoint,
		Reachable: true,
		Report:    report,
	}
}

func unreachable(endpoint string, err error) models.EndpointHealth {
	return models.EndpointHealth{
		Endpoint: endpoint,
		Err:      err,
	}
}

// compile-time interface check
var _ Prober = (*HTTPProber)(nil)
