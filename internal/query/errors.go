package query

import (
	"fmt"
	"time"
)

// ExecutionError reports an execution the engine ended as FAILED or
// CANCELLED. Retrying the same statement would fail the same way.
type ExecutionError struct {
	ExecutionID string
	State       string
	Reason      string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.State, e.Reason)
}

// TimeoutError reports that an execution did not reach a terminal state
// within the bridge's maximum wait.
type TimeoutError struct {
	ExecutionID string
	Waited      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query %s timed out after %s", e.ExecutionID, e.Waited.Round(time.Millisecond))
}
