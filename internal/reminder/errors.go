package reminder

import "fmt"

// PolicyError reports an invalid or missing policy. It is surfaced
// synchronously to the caller of Activate/Rebuild/Deactivate.
type PolicyError struct {
	ChatID int64
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy for chat %d: %s", e.ChatID, e.Reason)
}

// SchedulingError wraps a trigger registration failure for one recipient.
// During recovery these are isolated: one recipient's failure never aborts
// the others.
type SchedulingError struct {
	ChatID int64
	Err    error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling chat %d: %v", e.ChatID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
