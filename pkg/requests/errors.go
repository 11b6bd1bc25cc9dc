package requests

import "fmt"

// NotFoundError is returned when an endpoint answered with HTTP 404. It is
// deliberately distinct from other request failures: a 404 is ambiguous
// between "this node has not indexed the data yet" and "the data never
// existed", and the retry orchestration resolves the ambiguity by asking a
// bounded number of other endpoints.
type NotFoundError struct {
	Endpoint string
	Path     string
}

func NewNotFoundError(endpoint, path string) NotFoundError {
	return NotFoundError{Endpoint: endpoint, Path: path}
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("resource %s not found on %s", e.Path, e.Endpoint)
}

// UnexpectedStatusError is returned for any non-200, non-404 response.
type UnexpectedStatusError struct {
	Endpoint   string
	Path       string
	StatusCode int
	Body       string
}

func NewUnexpectedStatusError(endpoint, path string, statusCode int, body string) UnexpectedStatusError {
	return UnexpectedStatusError{
		Endpoint:   endpoint,
		Path:       path,
		StatusCode: statusCode,
		Body:       body,
	}
}

func (e UnexpectedStatusError) Error() string {
	return fmt.Sprintf("request to %s%s returned status %d: %s", e.Endpoint, e.Path, e.StatusCode, e.Body)
}

// ErrMalformedDescriptor is returned when a request descriptor cannot be sent
// at all. It always propagates to the caller rather than entering retry
// handling.
type ErrMalformedDescriptor struct {
	Reason string
}

func NewErrMalformedDescriptor(reason string) ErrMalformedDescriptor {
	return ErrMalformedDescriptor{Reason: reason}
}

func (e ErrMalformedDescriptor) Error() string {
	return fmt.Sprintf("malformed request descriptor: %s", e.Reason)
}
