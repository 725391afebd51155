package repositories

import "fmt"

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	// CounterErrorInvalidInput indicates the caller supplied an empty counter name or a non-positive step.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorCorrupt indicates the stored counter value cannot be decoded.
	CounterErrorCorrupt CounterErrorCode = "counter_corrupt"
)

// CounterError wraps sequence failures with machine readable codes.
type CounterError struct {
	CounterID string
	Code      CounterErrorCode
	Err       error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("counter %q: %s: %v", e.CounterID, e.Code, e.Err)
	}
	return fmt.Sprintf("counter %q: %s", e.CounterID, e.Code)
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCounterError constructs a typed counter error.
func NewCounterError(counterID string, code CounterErrorCode, err error) *CounterError {
	return &CounterError{CounterID: counterID, Code: code, Err: err}
}
