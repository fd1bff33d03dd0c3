package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "lockwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteLedger struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Ledger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	l := &sqliteLedger{db: db, log: log}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *sqliteLedger) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, string(b))
	return err
}

func (l *sqliteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *sqliteLedger) RecordCapture(ctx context.Context, r CaptureRecord) error {
	if l == nil || l.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO captures(at, kind, reason, media, human, motion, ok, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.Kind, nullStr(r.Reason), nullStr(r.Media),
		r.Human, r.Motion, r.OK, nullStr(r.Error),
	)
	return err
}

func (l *sqliteLedger) RecordDelivery(ctx context.Context, r DeliveryRecord) error {
	if l == nil || l.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO deliveries(at, channel, task_id, media, attempts, ok, err)
		 VALUES(?,?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.Channel, r.TaskID, nullStr(r.Media),
		r.Attempts, r.OK, nullStr(r.Error),
	)
	return err
}

func (l *sqliteLedger) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	s := Summary{Since: since, Delivered: map[string]int{}, Dropped: map[string]int{}}
	if l == nil || l.db == nil {
		return s, ErrDisabled
	}
	// RFC3339Nano in UTC sorts lexicographically, so a string compare on the
	// at column is a time compare.
	cutoff := since.UTC().Format(time.RFC3339Nano)

	err := l.db.QueryRowContext(ctx,
		`SELECT
		    COUNT(*) FILTER (WHERE ok = 1),
		    COUNT(*) FILTER (WHERE ok = 1 AND kind = 'scheduled'),
		    COUNT(*) FILTER (WHERE ok = 1 AND kind = 'triggered'),
		    COUNT(*) FILTER (WHERE ok = 1 AND human = 1),
		    COUNT(*) FILTER (WHERE ok = 1 AND motion = 1),
		    COUNT(*) FILTER (WHERE ok = 0)
		 FROM captures WHERE at >= ?`, cutoff,
	).Scan(&s.Captures, &s.Scheduled, &s.Triggered, &s.Human, &s.Motion, &s.CaptureFailures)
	if err != nil {
		return s, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT channel, ok, COUNT(*) FROM deliveries WHERE at >= ? GROUP BY channel, ok`, cutoff)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var channel string
		var ok bool
		var n int
		if err := rows.Scan(&channel, &ok, &n); err != nil {
			return s, err
		}
		if ok {
			s.Delivered[channel] = n
		} else {
			s.Dropped[channel] = n
		}
	}
	return s, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
