package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "aquabot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "aquabot.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPolicyRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetPolicy(ctx, 1); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	p := Policy{
		ChatID:          1,
		Message:         "drink!",
		IntervalMinutes: 60,
		StartHour:       8,
		EndHour:         23,
		Active:          true,
		OnboardingDone:  true,
		Timezone:        "Europe/Berlin",
	}
	if err := st.PutPolicy(ctx, p); err != nil {
		t.Fatalf("PutPolicy: %v", err)
	}

	got, ok, err := st.GetPolicy(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("GetPolicy: ok=%v err=%v", ok, err)
	}
	if got.Message != p.Message || got.StartHour != p.StartHour || got.EndHour != p.EndHour ||
		got.IntervalMinutes != p.IntervalMinutes || !got.Active || !got.OnboardingDone ||
		got.Timezone != p.Timezone {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not populated")
	}
}

func TestPutPolicyUpserts(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p := Policy{ChatID: 2, Message: "v1", IntervalMinutes: 60, StartHour: 8, EndHour: 23, Active: true, Timezone: "UTC"}
	if err := st.PutPolicy(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Message = "v2"
	p.StartHour = 9
	if err := st.PutPolicy(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, _, err := st.GetPolicy(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != "v2" || got.StartHour != 9 {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}

func TestSetActiveAndListActive(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if err := st.PutPolicy(ctx, Policy{
			ChatID: id, Message: "m", IntervalMinutes: 60,
			StartHour: 8, EndHour: 23, Active: true, Timezone: "UTC",
		}); err != nil {
			t.Fatal(err)
		}
	}

	existed, err := st.SetActive(ctx, 2, false)
	if err != nil || !existed {
		t.Fatalf("SetActive: existed=%v err=%v", existed, err)
	}
	if existed, err = st.SetActive(ctx, 999, false); err != nil || existed {
		t.Fatalf("SetActive unknown: existed=%v err=%v", existed, err)
	}

	active, err := st.ListActivePolicies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].ChatID != 1 || active[1].ChatID != 3 {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestCustomReminderLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 7, 1, 18, 30, 0, 0, time.UTC)

	id, err := st.AddCustomReminder(ctx, CustomReminder{
		ChatID: 5, Message: "stretch", At: at, Frequency: FreqDaily, Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("AddCustomReminder: %v", err)
	}
	if id == 0 {
		t.Fatal("no id assigned")
	}

	got, ok, err := st.GetCustomReminder(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetCustomReminder: ok=%v err=%v", ok, err)
	}
	if !got.At.Equal(at) || got.Frequency != FreqDaily || got.Message != "stretch" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := st.AddCustomReminder(ctx, CustomReminder{
		ChatID: 6, Message: "other", At: at, Frequency: FreqOnce, Timezone: "UTC",
	}); err != nil {
		t.Fatal(err)
	}

	mine, err := st.ListCustomReminders(ctx, 5)
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListCustomReminders: %v %+v", err, mine)
	}
	all, err := st.ListAllCustomReminders(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListAllCustomReminders: %v %+v", err, all)
	}

	deleted, err := st.DeleteCustomReminder(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("DeleteCustomReminder: deleted=%v err=%v", deleted, err)
	}
	if deleted, _ = st.DeleteCustomReminder(ctx, id); deleted {
		t.Fatal("second delete reported success")
	}
}

func TestAddCustomReminderValidates(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	at := time.Now()

	if _, err := st.AddCustomReminder(ctx, CustomReminder{
		ChatID: 1, Message: "  ", At: at, Frequency: FreqOnce,
	}); err == nil {
		t.Fatal("empty message accepted")
	}
	if _, err := st.AddCustomReminder(ctx, CustomReminder{
		ChatID: 1, Message: "x", At: at, Frequency: "hourly",
	}); err == nil {
		t.Fatal("invalid frequency accepted")
	}
}

func TestDeliveryHistory(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.LastDelivery(ctx, 7); err != nil || ok {
		t.Fatalf("empty history: ok=%v err=%v", ok, err)
	}

	first := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	if err := st.RecordDelivery(ctx, 7, first); err != nil {
		t.Fatal(err)
	}
	second := first.Add(time.Hour)
	if err := st.RecordDelivery(ctx, 7, second); err != nil {
		t.Fatal(err)
	}

	got, ok, err := st.LastDelivery(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("LastDelivery: ok=%v err=%v", ok, err)
	}
	if !got.Equal(second) {
		t.Fatalf("LastDelivery = %v, want %v", got, second)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
