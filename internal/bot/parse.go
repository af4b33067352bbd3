package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aquabot/internal/storage"
)

var errBadRemindArgs = errors.New("unparseable remind arguments")

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// remindRequest is the parsed form of a /remind command.
type remindRequest struct {
	At      time.Time
	Freq    storage.Frequency
	Message string
}

// parseRemind understands four shapes:
//
//	HH:MM text                     one-off today
//	YYYY-MM-DD HH:MM text          one-off on a date
//	daily HH:MM text               every day
//	weekly <mon..sun> HH:MM text   every week
//
// Clock times are interpreted in loc.
func parseRemind(args []string, now time.Time, loc *time.Location) (remindRequest, error) {
	if len(args) < 2 {
		return remindRequest{}, errBadRemindArgs
	}

	switch strings.ToLower(args[0]) {
	case "daily":
		h, m, err := parseHHMM(args[1])
		if err != nil || len(args) < 3 {
			return remindRequest{}, errBadRemindArgs
		}
		return remindRequest{
			At:      timeOn(now.In(loc), h, m),
			Freq:    storage.FreqDaily,
			Message: strings.Join(args[2:], " "),
		}, nil

	case "weekly":
		if len(args) < 4 {
			return remindRequest{}, errBadRemindArgs
		}
		wd, ok := weekdays[strings.ToLower(args[1])[:min(3, len(args[1]))]]
		if !ok {
			return remindRequest{}, errBadRemindArgs
		}
		h, m, err := parseHHMM(args[2])
		if err != nil {
			return remindRequest{}, errBadRemindArgs
		}
		at := timeOn(now.In(loc), h, m)
		for at.Weekday() != wd {
			at = at.AddDate(0, 0, 1)
		}
		return remindRequest{
			At:      at,
			Freq:    storage.FreqWeekly,
			Message: strings.Join(args[3:], " "),
		}, nil
	}

	// one-off with explicit date
	if day, err := time.ParseInLocation("2006-01-02", args[0], loc); err == nil {
		if len(args) < 3 {
			return remindRequest{}, errBadRemindArgs
		}
		h, m, err := parseHHMM(args[1])
		if err != nil {
			return remindRequest{}, errBadRemindArgs
		}
		return remindRequest{
			At:      timeOn(day, h, m),
			Freq:    storage.FreqOnce,
			Message: strings.Join(args[2:], " "),
		}, nil
	}

	// one-off today
	h, m, err := parseHHMM(args[0])
	if err != nil {
		return remindRequest{}, errBadRemindArgs
	}
	return remindRequest{
		At:      timeOn(now.In(loc), h, m),
		Freq:    storage.FreqOnce,
		Message: strings.Join(args[1:], " "),
	}, nil
}

var errBadSetupArgs = errors.New("unparseable setup arguments")

// setupRequest is the parsed form of a /setup command. Interval 0 means the
// caller did not ask to change it.
type setupRequest struct {
	StartHour int
	EndHour   int
	Interval  int
}

// parseSetup understands "<start> <end> [interval-minutes]", hours 0..23.
// Window ordering is left to policy validation so the user gets the
// coordinator's error, not a second copy of the rule here.
func parseSetup(args []string) (setupRequest, error) {
	if len(args) != 2 && len(args) != 3 {
		return setupRequest{}, errBadSetupArgs
	}
	start, err := strconv.Atoi(args[0])
	if err != nil || start < 0 || start > 23 {
		return setupRequest{}, errBadSetupArgs
	}
	end, err := strconv.Atoi(args[1])
	if err != nil || end < 0 || end > 23 {
		return setupRequest{}, errBadSetupArgs
	}
	req := setupRequest{StartHour: start, EndHour: end}
	if len(args) == 3 {
		iv, err := strconv.Atoi(args[2])
		if err != nil || iv <= 0 || iv > 24*60 {
			return setupRequest{}, errBadSetupArgs
		}
		req.Interval = iv
	}
	return req, nil
}

func parseHHMM(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h, m, nil
}

// timeOn pins a clock time onto day's date in day's location.
func timeOn(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
