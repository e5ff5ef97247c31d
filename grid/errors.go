package grid

import "fmt"

// DimensionMismatchError reports that an array did not have the extent an
// operation required along some axis.
type DimensionMismatchError struct {
	// What names the axis or object being checked, e.g. "lead time".
	What string
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for %s: want %d, got %d", e.What, e.Want, e.Got)
}

// CheckDim returns a *DimensionMismatchError when got != want.
func CheckDim(what string, want, got int) error {
	if want != got {
		return &DimensionMismatchError{What: what, Want: want, Got: got}
	}
	return nil
}
