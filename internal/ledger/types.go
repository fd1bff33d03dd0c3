package ledger

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("ledger disabled")

// Config configures the evidence ledger.
//
// Driver values:
//   - "file": dependency-free file backend (JSON Lines)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the ledger is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CaptureRecord is one capture attempt, successful or not.
// Keep it compact and schema-stable.
type CaptureRecord struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Reason string    `json:"reason,omitempty"`
	Media  string    `json:"media,omitempty"`
	Human  bool      `json:"human,omitempty"`
	Motion bool      `json:"motion,omitempty"`
	OK     bool      `json:"ok"`
	Error  string    `json:"err,omitempty"`
}

// DeliveryRecord is one terminal delivery outcome: delivered or dropped.
// Intermediate retries are not recorded.
type DeliveryRecord struct {
	At       time.Time `json:"at"`
	Channel  string    `json:"channel"`
	TaskID   string    `json:"task_id"`
	Media    string    `json:"media"`
	Attempts int       `json:"attempts"`
	OK       bool      `json:"ok"`
	Error    string    `json:"err,omitempty"`
}

// Summary aggregates ledger activity since a point in time.
type Summary struct {
	Since time.Time

	Captures        int
	Scheduled       int
	Triggered       int
	Human           int
	Motion          int
	CaptureFailures int

	Delivered map[string]int // by channel
	Dropped   map[string]int // by channel
}

func (s Summary) Empty() bool {
	return s.Captures == 0 && s.CaptureFailures == 0 &&
		len(s.Delivered) == 0 && len(s.Dropped) == 0
}
