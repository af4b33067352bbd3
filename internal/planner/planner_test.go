package planner

import (
	"testing"
	"time"
)

func TestHourlyCount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		start, end int
		want       int
	}{
		{name: "default window", start: 8, end: 23, want: 16},
		{name: "single hour", start: 12, end: 12, want: 1},
		{name: "full day", start: 0, end: 23, want: 24},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Hourly(tt.start, tt.end)
			if err != nil {
				t.Fatalf("Hourly(%d, %d) error: %v", tt.start, tt.end, err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if got[0] != (ClockTime{Hour: tt.start}) {
				t.Fatalf("first = %v, want %02d:00", got[0], tt.start)
			}
			if got[len(got)-1] != (ClockTime{Hour: tt.end}) {
				t.Fatalf("last = %v, want %02d:00", got[len(got)-1], tt.end)
			}
			for i := 1; i < len(got); i++ {
				if got[i].minutes() <= got[i-1].minutes() {
					t.Fatalf("sequence not strictly increasing at %d: %v", i, got)
				}
			}
		})
	}
}

func TestHourlyInvalidWindow(t *testing.T) {
	t.Parallel()
	if _, err := Hourly(23, 8); err == nil {
		t.Fatal("expected error for end before start")
	}
	if _, err := Hourly(-1, 10); err == nil {
		t.Fatal("expected error for negative start")
	}
	if _, err := Hourly(8, 24); err == nil {
		t.Fatal("expected error for hour 24")
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		start, end, step int
		want             []ClockTime
	}{
		{
			name: "half-hourly", start: 9, end: 11, step: 30,
			want: []ClockTime{{9, 0}, {9, 30}, {10, 0}, {10, 30}, {11, 0}},
		},
		{
			name: "ninety minutes", start: 8, end: 12, step: 90,
			want: []ClockTime{{8, 0}, {9, 30}, {11, 0}},
		},
		{
			name: "step larger than window", start: 10, end: 11, step: 180,
			want: []ClockTime{{10, 0}},
		},
		{
			name: "hourly equivalence", start: 8, end: 10, step: 60,
			want: []ClockTime{{8, 0}, {9, 0}, {10, 0}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interval(tt.start, tt.end, tt.step)
			if err != nil {
				t.Fatalf("Interval error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIntervalNeverCrossesMidnight(t *testing.T) {
	t.Parallel()
	got, err := Interval(22, 23, 45)
	if err != nil {
		t.Fatalf("Interval error: %v", err)
	}
	for _, c := range got {
		if c.Hour > 23 {
			t.Fatalf("instant %v crosses midnight", c)
		}
	}
	// 22:00, 22:45; 23:30 exceeds end 23:00
	if len(got) != 2 {
		t.Fatalf("got %v, want [22:00 22:45]", got)
	}
}

func TestIntervalInvalidStep(t *testing.T) {
	t.Parallel()
	if _, err := Interval(8, 23, 0); err == nil {
		t.Fatal("expected error for zero step")
	}
}

func TestUpcoming(t *testing.T) {
	t.Parallel()
	times, err := Hourly(8, 23)
	if err != nil {
		t.Fatalf("Hourly error: %v", err)
	}

	// 09:15 local: 09:00 already passed, 10:00..23:00 remain.
	now := time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)
	got := Upcoming(times, now)
	if len(got) != 14 {
		t.Fatalf("len = %d, want 14 (%v)", len(got), got)
	}
	if got[0] != (ClockTime{Hour: 10}) {
		t.Fatalf("first = %v, want 10:00", got[0])
	}

	// Exactly on the hour: that slot counts as passed.
	now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	got = Upcoming(times, now)
	if got[0] != (ClockTime{Hour: 10}) {
		t.Fatalf("first = %v, want 10:00 when now is exactly 09:00", got[0])
	}

	// Past the window: nothing remains today.
	now = time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	if got := Upcoming(times, now); len(got) != 0 {
		t.Fatalf("expected no upcoming instants, got %v", got)
	}

	// Before the window: all remain.
	now = time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)
	if got := Upcoming(times, now); len(got) != len(times) {
		t.Fatalf("expected all %d instants, got %d", len(times), len(got))
	}
}
