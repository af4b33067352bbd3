// Package planner computes the clock times a reminder window expands to.
// It is pure: generation never reads the wall clock, and the same inputs
// always produce the same sequence.
package planner

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock instant within a day. The zone it applies in is
// carried by the policy, not here.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// minutes since midnight
func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

// Hourly expands a window to one instant per whole hour, startHour through
// endHour inclusive. This is the canonical fixed schedule: start=8, end=23
// yields 16 instants at :00.
func Hourly(startHour, endHour int) ([]ClockTime, error) {
	if err := validateWindow(startHour, endHour); err != nil {
		return nil, err
	}
	out := make([]ClockTime, 0, endHour-startHour+1)
	for h := startHour; h <= endHour; h++ {
		out = append(out, ClockTime{Hour: h})
	}
	return out, nil
}

// Interval expands a window by stepping stepMinutes from startHour:00,
// stopping at or before endHour:00. Instants never roll into the next day,
// so a step larger than the window yields just the opening instant.
//
// Kept as the variable-interval strategy; the default policy uses Hourly.
func Interval(startHour, endHour, stepMinutes int) ([]ClockTime, error) {
	if err := validateWindow(startHour, endHour); err != nil {
		return nil, err
	}
	if stepMinutes <= 0 {
		return nil, fmt.Errorf("interval %d minutes is not positive", stepMinutes)
	}
	endM := endHour * 60
	var out []ClockTime
	for m := startHour * 60; m <= endM && m < 24*60; m += stepMinutes {
		out = append(out, ClockTime{Hour: m / 60, Minute: m % 60})
	}
	return out, nil
}

// Upcoming filters out instants that have already passed at the local time
// now. The comparison is strict: an instant equal to now's clock time is
// considered passed, so registering at exactly 09:00 does not double-fire
// the 09:00 slot.
func Upcoming(times []ClockTime, now time.Time) []ClockTime {
	nowM := now.Hour()*60 + now.Minute()
	out := make([]ClockTime, 0, len(times))
	for _, t := range times {
		if t.minutes() > nowM {
			out = append(out, t)
		}
	}
	return out
}

func validateWindow(startHour, endHour int) error {
	if startHour < 0 || startHour > 23 {
		return fmt.Errorf("start hour %d out of range 0..23", startHour)
	}
	if endHour < 0 || endHour > 23 {
		return fmt.Errorf("end hour %d out of range 0..23", endHour)
	}
	if endHour < startHour {
		return fmt.Errorf("window end %d before start %d", endHour, startHour)
	}
	return nil
}
