package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "lockwatch/pkg/logx"
)

// Ledger is the minimal persistence API used by the pipeline and reports.
type Ledger interface {
	RecordCapture(ctx context.Context, r CaptureRecord) error
	RecordDelivery(ctx context.Context, r DeliveryRecord) error
	Summarize(ctx context.Context, since time.Time) (Summary, error)
	Close() error
}

// Open initializes the configured ledger.
// It returns (nil, nil) if the ledger is disabled.
func Open(cfg Config, log logx.Logger) (Ledger, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown ledger driver: " + driver)
	}
}
