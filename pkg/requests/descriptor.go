package requests

import (
	"net/http"
	"net/url"
	"time"
)

// Descriptor is an immutable description of one logical request against a
// discovery node: everything except the endpoint it will be sent to.
type Descriptor struct {
	// Path is the endpoint-relative route, e.g. "/v1/tracks/trending".
	Path string

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Params are appended to the URL as the query string.
	Params url.Values

	// Headers are extra request headers. Identity and correlation headers are
	// added by the client and take precedence.
	Headers map[string]string

	// Body, when non-nil, is JSON encoded as the request body. An io.Reader
	// is sent as-is.
	Body any

	// Timeout bounds this request. Zero falls back to the client default.
	Timeout time.Duration
}

// Validate rejects descriptors the client could not meaningfully send. This is
// the only request-path error that is considered a caller bug rather than an
// endpoint failure.
func (d Descriptor) Validate() error {
	if d.Path == "" {
		return NewErrMalformedDescriptor("path is required")
	}
	switch d.Method {
	case "", http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return NewErrMalformedDescriptor("unsupported method " + d.Method)
	}
	return nil
}

func (d Descriptor) method() string {
	if d.Method == "" {
		return http.MethodGet
	}
	return d.Method
}
