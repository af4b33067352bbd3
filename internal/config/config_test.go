package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewManager(path)
}

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
  rate_per_sec: 20
  admins: [42]
logging:
  level: "debug"
  console: true
storage:
  path: "/tmp/aquabot-test.db"
  busy_timeout: "2s"
scheduler:
  workers: 4
  queue_size: 64
  misfire_grace: "30m"
  timezone: "Europe/Berlin"
reminder:
  message: "water time"
  start_hour: 9
  end_hour: 21
  interval_minutes: 30
`

func TestLoadValidYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, validYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.Admins) != 1 || cfg.Telegram.Admins[0] != 42 {
		t.Fatalf("admins = %v", cfg.Telegram.Admins)
	}
	if cfg.Scheduler.Workers != 4 || cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return committed config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, validYAML+"\nextra_section:\n  x: 1\n")
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level section accepted")
	}
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "missing token",
			mutate:  func(s string) string { return strings.Replace(s, `token: "123:abc"`, `token: ""`, 1) },
			wantErr: "token",
		},
		{
			name:    "missing storage path",
			mutate:  func(s string) string { return strings.Replace(s, `path: "/tmp/aquabot-test.db"`, `path: ""`, 1) },
			wantErr: "path",
		},
		{
			name:    "bad window",
			mutate:  func(s string) string { return strings.Replace(s, "start_hour: 9", "start_hour: 22", 1) },
			wantErr: "end_hour",
		},
		{
			name:    "bad timezone",
			mutate:  func(s string) string { return strings.Replace(s, `timezone: "Europe/Berlin"`, `timezone: "Nowhere/Oz"`, 1) },
			wantErr: "timezone",
		},
		{
			name:    "bad duration",
			mutate:  func(s string) string { return strings.Replace(s, `misfire_grace: "30m"`, `misfire_grace: "soon"`, 1) },
			wantErr: "misfire_grace",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := writeConfig(t, tt.mutate(validYAML))
			_, err := m.Load()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestReminderDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	msg, start, end, interval, tz := cfg.ReminderDefaults()
	if msg != DefaultMessage || start != DefaultStartHour || end != DefaultEndHour ||
		interval != DefaultIntervalMinutes || tz != DefaultTimezone {
		t.Fatalf("unexpected defaults: %q %d %d %d %q", msg, start, end, interval, tz)
	}

	nine, twentyone := 9, 21
	cfg.Reminder = ReminderConfig{Message: "hey", StartHour: &nine, EndHour: &twentyone, IntervalMinutes: 30}
	cfg.Scheduler.Timezone = "UTC"
	msg, start, end, interval, tz = cfg.ReminderDefaults()
	if msg != "hey" || start != 9 || end != 21 || interval != 30 || tz != "UTC" {
		t.Fatalf("unexpected resolved defaults: %q %d %d %d %q", msg, start, end, interval, tz)
	}
}

func TestDurationHelper(t *testing.T) {
	t.Parallel()
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("Duration(90s) = %v", got)
	}
	if got := Duration("", time.Minute); got != time.Minute {
		t.Fatalf("Duration empty = %v", got)
	}
	if got := Duration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("Duration garbage = %v", got)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, validYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber received wrong config")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive config")
	}

	// a full buffer keeps the newest value
	m.publish(cfg)
	next := *cfg
	m.publish(&next)
	select {
	case got := <-ch:
		if got != &next {
			t.Fatal("slow subscriber did not get the newest config")
		}
	case <-time.After(time.Second):
		t.Fatal("no config after drop-oldest")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed on unsubscribe")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"telegram":{"token":"t"}} {"extra":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}
