package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
monitor:
  enabled: true
  snapshot_interval: 30s
  video_duration: 10s
capture:
  snapshot_command: ["fswebcam", "--no-banner", "{output}"]
delivery:
  retry_max: 5
channels:
  telegram:
    enabled: true
    token: "123:abc"
    chat_id: -100123
  feishu:
    enabled: false
  wecom:
    enabled: false
ledger:
  driver: sqlite
  path: /var/lib/lockwatch/ledger.db
report:
  enabled: true
  schedule: "0 9 * * *"
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Monitor.Enabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Monitor.SnapshotInterval != "30s" {
		t.Fatalf("snapshot_interval = %q", cfg.Monitor.SnapshotInterval)
	}
	if got := cfg.Capture.SnapshotCommand; len(got) != 3 || got[0] != "fswebcam" {
		t.Fatalf("snapshot_command = %v", got)
	}
	if cfg.Delivery.RetryMax != 5 {
		t.Fatalf("retry_max = %d", cfg.Delivery.RetryMax)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.ChatID != -100123 {
		t.Fatalf("telegram = %+v", cfg.Channels.Telegram)
	}
	if cfg.Ledger == nil || cfg.Ledger.Driver != "sqlite" {
		t.Fatalf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Report == nil || cfg.Report.Schedule != "0 9 * * *" {
		t.Fatalf("report = %+v", cfg.Report)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() does not return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
  "monitor": {"enabled": true},
  "capture": {},
  "delivery": {},
  "channels": {"telegram": {"enabled": false}, "feishu": {"enabled": false}, "wecom": {"enabled": false}}
}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Monitor.Enabled {
		t.Fatalf("monitor.enabled not decoded: %+v", cfg.Monitor)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
monitor:
  enabled: true
  snapsot_interval: 30s
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("typo'd field accepted; strict decoding is broken")
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"monitor": {"enabled": true}}{"extra": 1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("trailing JSON document accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{" 10s ", 10 * time.Second, false},
		{"-5s", 0, true},
		{"ten seconds", 0, true},
		{"10", 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationField("test.field", tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
			if err != nil && !strings.Contains(err.Error(), "test.field") {
				t.Fatalf("error %q does not name the field", err)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("f", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("empty: got (%s, %v), want (1m, nil)", d, err)
	}
	if d, err := ParseDurationOrDefault("f", "5s", time.Minute); err != nil || d != 5*time.Second {
		t.Fatalf("explicit: got (%s, %v), want (5s, nil)", d, err)
	}
	if _, err := ParseDurationOrDefault("f", "bogus", time.Minute); err == nil {
		t.Fatal("bogus duration accepted")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", "monitor:\n  enabled: true\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	next := &Config{}
	m.Commit(next)
	m.publish(next)

	select {
	case got := <-sub:
		if got != next {
			t.Fatal("subscriber received a different config pointer")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive published config")
	}
}
