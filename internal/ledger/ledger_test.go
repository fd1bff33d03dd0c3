package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "lockwatch/pkg/logx"
)

func openTestLedger(t *testing.T, driver string) Ledger {
	t.Helper()
	l, err := Open(Config{
		Driver:      driver,
		Path:        filepath.Join(t.TempDir(), "ledger.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func seed(t *testing.T, l Ledger, at time.Time) {
	t.Helper()
	ctx := context.Background()

	records := []CaptureRecord{
		{At: at, Kind: "scheduled", Media: "photo", OK: true},
		{At: at.Add(time.Minute), Kind: "scheduled", Media: "photo", Human: true, OK: true},
		{At: at.Add(2 * time.Minute), Kind: "triggered", Reason: "wake-unlock", Media: "video", OK: true},
		{At: at.Add(3 * time.Minute), Kind: "triggered", Reason: "wake-unlock", Media: "photo", Motion: true, OK: true},
		{At: at.Add(4 * time.Minute), Kind: "scheduled", OK: false, Error: "camera busy"},
	}
	for _, r := range records {
		if err := l.RecordCapture(ctx, r); err != nil {
			t.Fatalf("RecordCapture: %v", err)
		}
	}

	deliveries := []DeliveryRecord{
		{At: at, Channel: "telegram", TaskID: "t1", Media: "photo", Attempts: 1, OK: true},
		{At: at.Add(time.Minute), Channel: "telegram", TaskID: "t2", Media: "video", Attempts: 2, OK: true},
		{At: at.Add(2 * time.Minute), Channel: "feishu", TaskID: "t3", Media: "photo", Attempts: 3, OK: false, Error: "token invalid"},
	}
	for _, r := range deliveries {
		if err := l.RecordDelivery(ctx, r); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
	}
}

func verifySummary(t *testing.T, l Ledger, since time.Time) {
	t.Helper()
	s, err := l.Summarize(context.Background(), since)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Captures != 4 {
		t.Errorf("Captures = %d, want 4", s.Captures)
	}
	if s.Scheduled != 2 || s.Triggered != 2 {
		t.Errorf("Scheduled/Triggered = %d/%d, want 2/2", s.Scheduled, s.Triggered)
	}
	if s.Human != 1 || s.Motion != 1 {
		t.Errorf("Human/Motion = %d/%d, want 1/1", s.Human, s.Motion)
	}
	if s.CaptureFailures != 1 {
		t.Errorf("CaptureFailures = %d, want 1", s.CaptureFailures)
	}
	if s.Delivered["telegram"] != 2 {
		t.Errorf("Delivered[telegram] = %d, want 2", s.Delivered["telegram"])
	}
	if s.Dropped["feishu"] != 1 {
		t.Errorf("Dropped[feishu] = %d, want 1", s.Dropped["feishu"])
	}
}

func TestSQLiteLedger(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t, "sqlite")
	base := time.Now().Add(-time.Hour)
	seed(t, l, base)
	verifySummary(t, l, base.Add(-time.Minute))
}

func TestFileLedger(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t, "file")
	base := time.Now().Add(-time.Hour)
	seed(t, l, base)
	verifySummary(t, l, base.Add(-time.Minute))
}

func TestSummarizeRespectsCutoff(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t, "sqlite")
	base := time.Now().Add(-48 * time.Hour)
	seed(t, l, base)

	// Everything seeded is older than the cutoff.
	s, err := l.Summarize(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !s.Empty() {
		t.Fatalf("summary not empty for a cutoff after all records: %+v", s)
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", "NONE"} {
		l, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if l != nil {
			t.Fatalf("Open(%q) returned a live ledger", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
