package datasets

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned for sample or initialization indices past
	// the end of the series.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInsufficientHistory is matched by every *InsufficientHistoryError.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrUnknownVarLevel is returned when a selection names a field the series
	// does not contain.
	ErrUnknownVarLevel = errors.New("unknown variable/level")
)

// InsufficientHistoryError reports an initialization whose input window would
// start before the first snapshot of the series.
type InsufficientHistoryError struct {
	// Init is the requested initialization index.
	Init int
	// Need is the number of snapshots the input window spans.
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("initialization %d needs %d input steps starting at index %d, before series start",
		e.Init, e.Need, e.Init-e.Need+1)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }
