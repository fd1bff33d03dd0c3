package config

// Config is the root configuration document.
//
// Files may be JSON or YAML; both are decoded strictly (unknown fields are
// rejected) so typos fail fast instead of silently disabling a channel.
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Monitor  MonitorConfig  `json:"monitor"`
	Capture  CaptureConfig  `json:"capture"`
	Delivery DeliveryConfig `json:"delivery"`
	Channels ChannelsConfig `json:"channels"`
	Ledger   *LedgerConfig  `json:"ledger,omitempty"`
	Report   *ReportConfig  `json:"report,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MonitorConfig controls state monitoring and capture behavior.
//
// Defaults (when fields are omitted/zero):
//   - snapshot_interval: "60s"
//   - video_duration: "10s"
//   - warmup_delay: "2s"
type MonitorConfig struct {
	Enabled bool `json:"enabled"`

	// SnapshotInterval is the cadence between scheduled snapshots while the
	// machine is locked or the screen is asleep.
	SnapshotInterval string `json:"snapshot_interval,omitempty"`

	// VideoDuration is the length of the evidence video recorded on wake/unlock.
	VideoDuration string `json:"video_duration,omitempty"`

	// WarmupDelay is waited after opening the capture session before the
	// evidence video starts, so the camera sensor has settled.
	WarmupDelay string `json:"warmup_delay,omitempty"`
}

// CaptureConfig configures the command-backed capture engine.
//
// Commands are argv slices; {output} and {duration} placeholders are
// substituted before execution.
type CaptureConfig struct {
	SnapshotCommand []string `json:"snapshot_command,omitempty"`
	VideoCommand    []string `json:"video_command,omitempty"`
	Dir             string   `json:"dir,omitempty"`

	// HumanCommand is an external classifier invoked per snapshot with the
	// image path substituted for {input}; exit code 0 means a human is
	// present. Empty disables human detection.
	HumanCommand []string `json:"human_command,omitempty"`

	// MotionThreshold is the mean luminance delta (0..255) between
	// consecutive snapshots above which motion is tagged. 0 means default (12).
	MotionThreshold float64 `json:"motion_threshold,omitempty"`
}

// DeliveryConfig controls the per-channel upload queues.
//
// Defaults:
//   - retry_max: 3
//   - retry_max_delay: "60s"
type DeliveryConfig struct {
	RetryMax int `json:"retry_max,omitempty"`

	// RetryMaxDelay caps both the exponential backoff and any retry-after
	// hint returned by a channel API.
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Feishu   FeishuConfig   `json:"feishu"`
	WeCom    WeComConfig    `json:"wecom"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`

	// MinInterval is the minimum spacing between Telegram API calls.
	// Defaults to "1s" (Telegram per-chat flood limit).
	MinInterval string `json:"min_interval,omitempty"`
}

type FeishuConfig struct {
	Enabled bool `json:"enabled"`

	// Token is the tenant access token used as bearer auth.
	Token         string `json:"token,omitempty"`
	ReceiveID     string `json:"receive_id,omitempty"`
	ReceiveIDType string `json:"receive_id_type,omitempty"` // default "open_id"
}

type WeComConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// LedgerConfig controls the optional evidence ledger.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file": append-only JSON Lines files
//   - "" or "none": ledger disabled
type LedgerConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ReportConfig controls the scheduled summary report.
//
// Schedule is a cron spec (default "0 9 * * *"); Timezone is an IANA name.
type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}
