package app

import (
	"context"
	"fmt"
	"time"

	"lockwatch/internal/capture"
	"lockwatch/internal/config"
	"lockwatch/internal/delivery"
	"lockwatch/internal/report"
	"lockwatch/internal/watch"
)

// Mapping helpers between the config document and component configs.

func execConfig(c config.CaptureConfig) capture.ExecConfig {
	return capture.ExecConfig{
		SnapshotCommand: c.SnapshotCommand,
		VideoCommand:    c.VideoCommand,
		Dir:             c.Dir,
	}
}

func detectorConfig(c config.CaptureConfig) capture.DetectorConfig {
	return capture.DetectorConfig{
		MotionThreshold: c.MotionThreshold,
		HumanCommand:    c.HumanCommand,
		Dir:             c.Dir,
	}
}

func queueConfig(c config.DeliveryConfig) (delivery.QueueConfig, error) {
	maxDelay, err := config.ParseDurationOrDefault("delivery.retry_max_delay", c.RetryMaxDelay, 60*time.Second)
	if err != nil {
		return delivery.QueueConfig{}, err
	}
	return delivery.QueueConfig{
		RetryMax:      c.RetryMax,
		RetryMaxDelay: maxDelay,
	}, nil
}

func monitorSettings(cfgm *config.Manager) watch.SettingsFunc {
	return func() watch.Settings {
		m := cfgm.Get().Monitor
		interval, _ := config.ParseDurationOrDefault("monitor.snapshot_interval", m.SnapshotInterval, time.Minute)
		video, _ := config.ParseDurationOrDefault("monitor.video_duration", m.VideoDuration, 10*time.Second)
		warmup, _ := config.ParseDurationOrDefault("monitor.warmup_delay", m.WarmupDelay, 2*time.Second)
		return watch.Settings{
			SnapshotInterval: interval,
			VideoDuration:    video,
			WarmupDelay:      warmup,
		}
	}
}

// validateConfig rejects configs that would break components at apply time.
// Used both at startup and as the hot-reload gate.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}
	for _, f := range []struct{ path, raw string }{
		{"monitor.snapshot_interval", cfg.Monitor.SnapshotInterval},
		{"monitor.video_duration", cfg.Monitor.VideoDuration},
		{"monitor.warmup_delay", cfg.Monitor.WarmupDelay},
		{"delivery.retry_max_delay", cfg.Delivery.RetryMaxDelay},
		{"channels.telegram.min_interval", cfg.Channels.Telegram.MinInterval},
	} {
		if _, err := config.ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Delivery.RetryMax < 0 {
		return fmt.Errorf("delivery.retry_max must be >= 0")
	}
	if cfg.Capture.MotionThreshold < 0 {
		return fmt.Errorf("capture.motion_threshold must be >= 0")
	}
	if cfg.Ledger != nil {
		if _, err := config.ParseDurationField("ledger.busy_timeout", cfg.Ledger.BusyTimeout); err != nil {
			return err
		}
	}
	if cfg.Report != nil && cfg.Report.Enabled {
		if err := report.ValidateSchedule(cfg.Report.Schedule, cfg.Report.Timezone); err != nil {
			return err
		}
	}
	return nil
}
