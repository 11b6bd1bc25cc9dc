//go:build unit || !integration

package requests

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nodepool-project/nodepool/pkg/logger"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []RequestEvent
}

func (o *recordingObserver) OnRequest(event RequestEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) last() RequestEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[len(o.events)-1]
}

type staticIdentity string

func (s staticIdentity) CurrentUserID() string {
	return string(s)
}

type ClientSuite struct {
	suite.Suite
	ctx      context.Context
	observer *recordingObserver
	client   *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	logger.ConfigureTestLogging(s.T())
	s.ctx = context.Background()
	s.observer = &recordingObserver{}
	s.client = NewClient(ClientParams{
		Identity: staticIdentity("42"),
		Observer: s.observer,
	})
}

func (s *ClientSuite) TestSuccessfulRequest() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/v1/tracks", r.URL.Path)
		s.Equal("7", r.URL.Query().Get("limit"))
		s.Equal("42", r.Header.Get(HTTPHeaderUserID))
		s.NotEmpty(r.Header.Get(HTTPHeaderRequestID))
		s.True(strings.HasPrefix(r.Header.Get("User-Agent"), "nodepool/"))

		_, _ = w.Write([]byte(`{
			"data": {"id": "T1"},
			"latest_indexed_block": 99,
			"latest_chain_block": 100,
			"signer": "0xabc",
			"signature": "0xsig"
		}`))
	}))
	defer server.Close()

	env, err := s.client.Do(s.ctx, server.URL, Descriptor{
		Path:   "/v1/tracks",
		Params: url.Values{"limit": []string{"7"}},
	})
	s.Require().NoError(err)
	s.JSONEq(`{"id": "T1"}`, string(env.Data))
	s.Equal("0xabc", env.Signer)
	s.Require().NotNil(env.BlocksBehind())
	s.EqualValues(1, *env.BlocksBehind())

	event := s.observer.last()
	s.Equal(server.URL, event.Endpoint)
	s.Equal("/v1/tracks", event.Pathname)
	s.Equal("limit=7", event.QueryString)
	s.Equal(http.MethodGet, event.RequestMethod)
	s.Equal(http.StatusOK, event.Status)
	s.Equal("0xabc", event.Signer)
	s.Equal("0xsig", event.Signature)
	s.GreaterOrEqual(event.ResponseTimeMillis, int64(0))
}

func (s *ClientSuite) TestNotFoundIsDistinguished() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := s.client.Do(s.ctx, server.URL, Descriptor{Path: "/v1/tracks/missing"})
	var notFound NotFoundError
	s.Require().ErrorAs(err, &notFound)
	s.Equal(server.URL, notFound.Endpoint)
	s.Equal(http.StatusNotFound, s.observer.last().Status)
}

func (s *ClientSuite) TestUnexpectedStatusCarriesBody() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("database exploded"))
	}))
	defer server.Close()

	_, err := s.client.Do(s.ctx, server.URL, Descriptor{Path: "/v1/tracks"})
	var unexpected UnexpectedStatusError
	s.Require().ErrorAs(err, &unexpected)
	s.Equal(http.StatusInternalServerError, unexpected.StatusCode)
	s.Contains(unexpected.Body, "database exploded")
}

func (s *ClientSuite) TestTransportFailureIsGeneric() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := s.client.Do(s.ctx, endpoint, Descriptor{Path: "/v1/tracks"})
	s.Require().Error(err)
	var notFound NotFoundError
	s.False(errors.As(err, &notFound))
}

func (s *ClientSuite) TestObserverPanicIsSwallowed() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": 1, "latest_indexed_block": 1, "latest_chain_block": 1}`))
	}))
	defer server.Close()

	client := NewClient(ClientParams{
		Observer: ObserverFunc(func(event RequestEvent) {
			panic("observer bug")
		}),
	})

	env, err := client.Do(s.ctx, server.URL, Descriptor{Path: "/v1/tracks"})
	s.Require().NoError(err)
	s.Equal(json.RawMessage("1"), env.Data)
}

func (s *ClientSuite) TestPostEncodesBody() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		s.JSONEq(`{"name": "playlist"}`, string(body))
		_, _ = w.Write([]byte(`{"data": true}`))
	}))
	defer server.Close()

	_, err := s.client.Do(s.ctx, server.URL, Descriptor{
		Path:   "/v1/playlists",
		Method: http.MethodPost,
		Body:   map[string]string{"name": "playlist"},
	})
	s.Require().NoError(err)
}

func (s *ClientSuite) TestMalformedDescriptor() {
	_, err := s.client.Do(s.ctx, "http://irrelevant", Descriptor{})
	var malformed ErrMalformedDescriptor
	s.Require().ErrorAs(err, &malformed)

	_, err = s.client.Do(s.ctx, "http://irrelevant", Descriptor{Path: "/x", Method: "TRACE"})
	s.Require().ErrorAs(err, &malformed)
}
