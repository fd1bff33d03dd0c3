package report

import (
	"strings"
	"testing"
	"time"

	"lockwatch/internal/ledger"
)

func TestBuildText(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	s := ledger.Summary{
		Captures:        12,
		Scheduled:       10,
		Triggered:       2,
		Human:           1,
		Motion:          3,
		CaptureFailures: 1,
		Delivered:       map[string]int{"telegram": 11, "wecom": 9},
		Dropped:         map[string]int{"feishu": 2},
	}

	got := BuildText(s, now, 24*time.Hour)
	for _, want := range []string{
		"Activity summary 2026-08-23 09:00 (last 24h0m0s)",
		"Captures: 12 (10 scheduled, 2 triggered)",
		"Detections: 1 human, 3 motion",
		"Capture failures: 1",
		"Delivered via telegram: 11",
		"Delivered via wecom: 9",
		"Dropped on feishu: 2",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("digest missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "No activity") {
		t.Errorf("non-empty summary rendered as no activity:\n%s", got)
	}
}

func TestBuildTextEmpty(t *testing.T) {
	t.Parallel()

	got := BuildText(ledger.Summary{}, time.Now(), 24*time.Hour)
	if !strings.Contains(got, "No activity recorded.") {
		t.Errorf("empty summary digest = %q", got)
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    string
		tz      string
		wantErr bool
	}{
		{"default empty", "", "", false},
		{"five field", "0 9 * * *", "", false},
		{"six field with seconds", "30 0 9 * * *", "", false},
		{"descriptor", "@daily", "", false},
		{"valid timezone", "0 9 * * *", "Asia/Shanghai", false},
		{"bad spec", "not a cron spec", "", true},
		{"bad timezone", "0 9 * * *", "Mars/Olympus", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSchedule(tt.spec, tt.tz)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSchedule(%q, %q) = %v, wantErr %v", tt.spec, tt.tz, err, tt.wantErr)
			}
		})
	}
}
