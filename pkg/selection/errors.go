package selection

import "fmt"

// ErrNoHealthyEndpoints is returned when selection found zero usable
// endpoints. Individual probe failures never surface as errors on their own;
// this is the only failure mode of a selection round.
type ErrNoHealthyEndpoints struct {
	// Causes aggregates the per-endpoint probe failures, when any candidates
	// were probed at all.
	Causes error
}

func NewErrNoHealthyEndpoints(causes error) ErrNoHealthyEndpoints {
	return ErrNoHealthyEndpoints{Causes: causes}
}

func (e ErrNoHealthyEndpoints) Error() string {
	if e.Causes != nil {
		return fmt.Sprintf("no healthy endpoints available: %s", e.Causes)
	}
	return "no healthy endpoints available"
}

func (e ErrNoHealthyEndpoints) Unwrap() error {
	return e.Causes
}
