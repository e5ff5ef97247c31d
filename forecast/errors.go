package forecast

import (
	"fmt"
	"slices"
)

// InferenceError wraps a Predictor failure. Unwrap returns the predictor's
// error unchanged so callers can match on it.
type InferenceError struct {
	// Inits are the initialization indices of the failed batch.
	Inits []int
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("predictor failed for initializations %v: %v", e.Inits, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// RolloutError is returned alongside a partial forecast when one or more
// batches failed. Batches that succeeded keep their results.
type RolloutError struct {
	// Failed lists every initialization index whose batch failed, in request
	// order.
	Failed []int

	// Errs holds one error per failed batch.
	Errs []error
}

// FailedInit reports whether init is one of the failed initializations.
func (e *RolloutError) FailedInit(init int) bool {
	return slices.Contains(e.Failed, init)
}

func (e *RolloutError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("rollout failed for initializations %v: %v", e.Failed, e.Errs[0])
	}
	return fmt.Sprintf("rollout failed for initializations %v (%d batches): %v", e.Failed, len(e.Errs), e.Errs[0])
}

// Unwrap exposes every batch error to errors.Is and errors.As.
func (e *RolloutError) Unwrap() []error { return e.Errs }
