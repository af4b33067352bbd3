package reminder

import "time"

// Outcome tags the result of scheduling a custom reminder so callers branch
// on a closed set instead of comparing sentinel strings.
type Outcome int

const (
	// OutcomeScheduled means a trigger was registered and will fire.
	OutcomeScheduled Outcome = iota
	// OutcomeMissedOnce means a one-off reminder's instant had already
	// passed; nothing was registered and the record was discarded.
	OutcomeMissedOnce
	// OutcomeFailed means registration failed; see ScheduleResult.Err.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeScheduled:
		return "scheduled"
	case OutcomeMissedOnce:
		return "missed_once"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// ScheduleResult reports what happened to one custom reminder.
type ScheduleResult struct {
	Outcome Outcome
	// NextFire is the first upcoming fire instant when Outcome is
	// OutcomeScheduled; zero otherwise.
	NextFire time.Time
	Err      error
}
