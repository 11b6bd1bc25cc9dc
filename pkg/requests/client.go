package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nodepool-project/nodepool/pkg/version"
)

const (
	DefaultRequestTimeout = 30 * time.Second

	// HTTPHeaderUserID carries the optional current-user identity.
	HTTPHeaderUserID = "X-User-ID"
	// HTTPHeaderRequestID carries a fresh per-request correlation ID.
	HTTPHeaderRequestID = "X-Request-ID"

	maxErrorBodyBytes = 2048
)

// IdentityProvider supplies the optional user identity attached to every
// application request. An empty return value omits the header.
type IdentityProvider interface {
	CurrentUserID() string
}

type ClientParams struct {
	// HTTPClient overrides the underlying HTTP client. Defaults to a client
	// with an otel instrumented transport.
	HTTPClient *http.Client

	// Timeout is the per-request default when a descriptor carries none.
	// Defaults to DefaultRequestTimeout.
	Timeout time.Duration

	// Identity supplies the X-User-ID header value. Optional.
	Identity IdentityProvider

	// Observer receives a RequestEvent per attempt. Optional.
	Observer Observer
}

// Client issues application requests against a single endpoint at a time. It
// has no retry or selection logic of its own: callers hand it the endpoint to
// use and interpret the typed errors it returns.
type Client struct {
	client   *http.Client
	timeout  time.Duration
	identity IdentityProvider
	observer Observer
}

func NewClient(params ClientParams) *Client {
	client := params.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(nil,
				otelhttp.WithSpanOptions(
					trace.WithAttributes(
						attribute.String("client", "nodepool.requests"),
					),
				),
			),
		}
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		client:   client,
		timeout:  timeout,
		identity: params.Identity,
		observer: params.Observer,
	}
}

// Do performs one request attempt against the given endpoint. HTTP 404 maps
// to NotFoundError, other non-200 statuses to UnexpectedStatusError, and
// transport failures to wrapped generic errors. The observer is notified in
// every case.
func (c *Client) Do(ctx context.Context, endpoint string, d Descriptor) (*Envelope, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildRequest(ctx, endpoint, d)
	if err != nil {
		return nil, err
	}

	event := RequestEvent{
		Endpoint:      endpoint,
		Pathname:      d.Path,
		QueryString:   d.Params.Encode(),
		RequestMethod: d.method(),
	}

	start := time.Now()
	res, err := c.client.Do(req)
	event.ResponseTimeMillis = time.Since(start).Milliseconds()
	if err != nil {
		notifyObserver(ctx, c.observer, event)
		return nil, errors.Wrapf(err, "request to %s failed", endpoint)
	}
	defer res.Body.Close()
	event.Status = res.StatusCode

	if res.StatusCode == http.StatusNotFound {
		notifyObserver(ctx, c.observer, event)
		return nil, NewNotFoundError(endpoint, d.Path)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
		notifyObserver(ctx, c.observer, event)
		return nil, NewUnexpectedStatusError(endpoint, d.Path, res.StatusCode, string(body))
	}

	var env Envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		notifyObserver(ctx, c.observer, event)
		return nil, errors.Wrapf(err, "decoding response from %s", endpoint)
	}

	event.Signer = env.Signer
	event.Signature = env.Signature
	notifyObserver(ctx, c.observer, event)

	log.Ctx(ctx).Trace().
		Str("endpoint", endpoint).
		Str("path", d.Path).
		Int64("millis", event.ResponseTimeMillis).
		Msg("request completed")
	return &env, nil
}

func (c *Client) buildRequest(ctx context.Context, endpoint string, d Descriptor) (*http.Request, error) {
	addr, err := url.JoinPath(endpoint, d.Path)
	if err != nil {
		return nil, NewErrMalformedDescriptor(err.Error())
	}
	if len(d.Params) > 0 {
		addr = addr + "?" + d.Params.Encode()
	}

	body, err := encodeBody(d.Body)
	if err != nil {
		return nil, NewErrMalformedDescriptor(fmt.Sprintf("encoding body: %s", err))
	}

	req, err := http.NewRequestWithContext(ctx, d.method(), addr, body)
	if err != nil {
		return nil, NewErrMalformedDescriptor(err.Error())
	}

	for header, value := range d.Headers {
		req.Header.Set(header, value)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "nodepool/"+version.Get())
	req.Header.Set(HTTPHeaderRequestID, uuid.NewString())
	if d.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity != nil {
		if userID := c.identity.CurrentUserID(); userID != "" {
			req.Header.Set(HTTPHeaderUserID, userID)
		}
	}
	return req, nil
}

// encodeBody prepares the reader serving as the request body: raw io.Readers
// pass through, anything else is JSON encoded, and nil stays nil.
func encodeBody(obj any) (io.Reader, error) {
	if obj == nil {
		return nil, nil
	}
	if reader, ok := obj.(io.Reader); ok {
		return reader, nil
	}
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf, nil
}
