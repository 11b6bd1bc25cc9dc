//go:build unit || !integration

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nodepool-project/nodepool/pkg/logger"
	"github.com/nodepool-project/nodepool/pkg/models"
	"github.com/nodepool-project/nodepool/pkg/requests"
	"github.com/nodepool-project/nodepool/pkg/selection"
)

// healthyProber reports every endpoint as reachable with zero lag so that
// selection always succeeds while endpoints remain.
type healthyProber struct{}

func (healthyProber) Probe(ctx context.Context, endpoint string) models.EndpointHealth {
	block := int64(1000)
	return models.EndpointHealth{
		Endpoint:  endpoint,
		Reachable: true,
		Report: models.HealthReport{
			LatestIndexedBlock: &block,
			LatestChainBlock:   &block,
			Version:            "1.0.0",
		},
	}
}

// scriptedClient answers each call through a script function and records the
// endpoints it was asked to hit.
type scriptedClient struct {
	mu        sync.Mutex
	endpoints []string
	script    func(call int, endpoint string) (*requests.Envelope, error)
}

func (c *scriptedClient) Do(ctx context.Context, endpoint string, d requests.Descriptor) (*requests.Envelope, error) {
	c.mu.Lock()
	call := len(c.endpoints)
	c.endpoints = append(c.endpoints, endpoint)
	c.mu.Unlock()
	return c.script(call, endpoint)
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.endpoints)
}

func freshEnvelope(data string) *requests.Envelope {
	indexed, chain := int64(100), int64(100)
	return &requests.Envelope{
		HealthReport: models.HealthReport{
			LatestIndexedBlock: &indexed,
			LatestChainBlock:   &chain,
		},
		Data: json.RawMessage(data),
	}
}

func staleEnvelope(blocksBehind int64) *requests.Envelope {
	chain := int64(1000)
	indexed := chain - blocksBehind
	return &requests.Envelope{
		HealthReport: models.HealthReport{
			LatestIndexedBlock: &indexed,
			LatestChainBlock:   &chain,
		},
		Data: json.RawMessage(`"stale"`),
	}
}

type OrchestratorSuite struct {
	suite.Suite
	ctx context.Context
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
}

func (s *OrchestratorSuite) newSelector(endpoints ...string) *selection.Selector {
	return selection.NewSelector(selection.SelectorParams{
		Endpoints: endpoints,
		Prober:    healthyProber{},
	})
}

func (s *OrchestratorSuite) descriptor() requests.Descriptor {
	return requests.Descriptor{Path: "/v1/tracks/T1"}
}

func (s *OrchestratorSuite) TestSuccessReturnsData() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return freshEnvelope(`{"id": "T1"}`), nil
	}}
	orch := New(Params{Selector: s.newSelector("http://a"), Client: client})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.JSONEq(`{"id": "T1"}`, string(data))
	s.Equal(1, client.calls())
}

func (s *OrchestratorSuite) TestBoundedRetriesAcrossEndpoints() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return nil, errors.New("boom")
	}}
	orch := New(Params{
		Selector:                s.newSelector("http://a", "http://b"),
		Client:                  client,
		SelectionRequestRetries: 1,
	})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.Nil(data)
	// each endpoint gets the initial attempt plus one retry before being
	// abandoned, then the fleet is exhausted
	s.Equal(4, client.calls())
	s.Equal([]string{"http://a", "http://a", "http://b", "http://b"}, client.endpoints)
}

func (s *OrchestratorSuite) TestNotFoundBudget() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return nil, requests.NewNotFoundError(endpoint, "/v1/tracks/T1")
	}}
	orch := New(Params{
		Selector:              s.newSelector("http://a", "http://b", "http://c", "http://d"),
		Client:                client,
		MaxRequestsForTrue404: 2,
	})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.Nil(data)
	// two tolerated not-founds each force a reselection; the third is
	// believed immediately
	s.Equal(3, client.calls())
	s.Len(uniqueStrings(client.endpoints), 3)
}

func (s *OrchestratorSuite) TestNotFoundRecoversOnAnotherEndpoint() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		if call == 0 {
			return nil, requests.NewNotFoundError(endpoint, "/v1/tracks/T1")
		}
		return freshEnvelope(`"found elsewhere"`), nil
	}}
	orch := New(Params{
		Selector:              s.newSelector("http://a", "http://b"),
		Client:                client,
		MaxRequestsForTrue404: 2,
	})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.JSONEq(`"found elsewhere"`, string(data))
	s.Equal(2, client.calls())
}

func (s *OrchestratorSuite) TestSingleEndpointNotFoundTerminates() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return nil, requests.NewNotFoundError(endpoint, "/v1/tracks/T1")
	}}
	orch := New(Params{
		Selector:              s.newSelector("http://only"),
		Client:                client,
		MaxRequestsForTrue404: 2,
	})

	// the first 404 forces a reselection; with no other endpoint left the
	// call resolves to no-data instead of hanging
	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.Nil(data)
	s.Equal(1, client.calls())
}

func (s *OrchestratorSuite) TestRegressedModeSuppressesStaleness() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return staleEnvelope(500), nil
	}}
	orch := New(Params{
		Selector: s.newSelector("http://a"),
		Client:   client,
		Regressed: RegressedModeFunc(func(ctx context.Context) bool {
			return true
		}),
	})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.JSONEq(`"stale"`, string(data))
	s.Equal(1, client.calls())
}

func (s *OrchestratorSuite) TestStaleResponsesExhaustToNoData() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return staleEnvelope(500), nil
	}}
	orch := New(Params{
		Selector:                s.newSelector("http://a"),
		Client:                  client,
		SelectionRequestRetries: 2,
	})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.Nil(data)
	s.Equal(3, client.calls())
}

func (s *OrchestratorSuite) TestMissingHeightsFailSafe() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return &requests.Envelope{Data: json.RawMessage(`"suspicious"`)}, nil
	}}
	orch := New(Params{
		Selector:                s.newSelector("http://a"),
		Client:                  client,
		SelectionRequestRetries: 1,
	})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.Nil(data)
}

func (s *OrchestratorSuite) TestDisabledSlotCheckNeverRejects() {
	behindIndexed, behindChain := int64(0), int64(999999)
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		env := freshEnvelope(`"plays lagging"`)
		env.LatestIndexedSlotPlays = &behindIndexed
		env.LatestChainSlotPlays = &behindChain
		return env, nil
	}}
	// slot threshold left nil: the slot staleness check is fully disabled
	orch := New(Params{Selector: s.newSelector("http://a"), Client: client})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.JSONEq(`"plays lagging"`, string(data))
}

func (s *OrchestratorSuite) TestEnabledSlotCheckRejects() {
	behindIndexed, behindChain := int64(0), int64(999999)
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		env := freshEnvelope(`"plays lagging"`)
		env.LatestIndexedSlotPlays = &behindIndexed
		env.LatestChainSlotPlays = &behindChain
		return env, nil
	}}
	slotDiff := int64(10)
	selector := selection.NewSelector(selection.SelectorParams{
		Endpoints:              []string{"http://a"},
		Prober:                 healthyProber{},
		UnhealthySlotDiffPlays: &slotDiff,
	})
	orch := New(Params{
		Selector:                selector,
		Client:                  client,
		SelectionRequestRetries: 1,
	})

	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.Nil(data)
}

func (s *OrchestratorSuite) TestTotalSelectionFailureIsTerminal() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		s.FailNow("client must not be called")
		return nil, nil
	}}
	selector := selection.NewSelector(selection.SelectorParams{
		Endpoints: []string{"http://down"},
		Prober:    unreachableProber{},
	})
	orch := New(Params{Selector: selector, Client: client})

	_, err := orch.Fetch(s.ctx, s.descriptor())
	var noHealthy selection.ErrNoHealthyEndpoints
	s.Require().ErrorAs(err, &noHealthy)
}

func (s *OrchestratorSuite) TestMalformedDescriptorPropagates() {
	orch := New(Params{Selector: s.newSelector("http://a"), Client: &scriptedClient{}})

	_, err := orch.Fetch(s.ctx, requests.Descriptor{Method: http.MethodGet})
	var malformed requests.ErrMalformedDescriptor
	s.Require().ErrorAs(err, &malformed)
}

func (s *OrchestratorSuite) TestThresholdUpdateAppliesToValidation() {
	client := &scriptedClient{script: func(call int, endpoint string) (*requests.Envelope, error) {
		return staleEnvelope(20), nil
	}}
	selector := s.newSelector("http://a")
	orch := New(Params{Selector: selector, Client: client})

	// 20 blocks behind is stale under the default threshold but fine after
	// widening it
	selector.SetUnhealthyBlockDiff(100)
	data, err := orch.Fetch(s.ctx, s.descriptor())
	s.Require().NoError(err)
	s.JSONEq(`"stale"`, string(data))
}

type unreachableProber struct{}

func (unreachableProber) Probe(ctx context.Context, endpoint string) models.EndpointHealth {
	return models.EndpointHealth{Endpoint: endpoint, Err: context.DeadlineExceeded}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
