package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "lockwatch/pkg/logx"
)

// fileLedger is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.captures.jsonl   (append-only JSON Lines)
//   - <prefix>.deliveries.jsonl (append-only JSON Lines)
//
// Summarize replays the files; fine for the daily-report volumes this tool
// produces, wrong for anything high-frequency.
type fileLedger struct {
	log logx.Logger

	mu sync.Mutex

	capturesPath   string
	deliveriesPath string

	capturesFile   *os.File
	deliveriesFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Ledger, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	capturesPath := prefix + ".captures.jsonl"
	deliveriesPath := prefix + ".deliveries.jsonl"

	cf, err := os.OpenFile(capturesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	df, err := os.OpenFile(deliveriesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = cf.Close()
		return nil, err
	}

	return &fileLedger{
		log:            log,
		capturesPath:   capturesPath,
		deliveriesPath: deliveriesPath,
		capturesFile:   cf,
		deliveriesFile: df,
	}, nil
}

func (l *fileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err1, err2 error
	if l.capturesFile != nil {
		err1 = l.capturesFile.Close()
		l.capturesFile = nil
	}
	if l.deliveriesFile != nil {
		err2 = l.deliveriesFile.Close()
		l.deliveriesFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (l *fileLedger) RecordCapture(ctx context.Context, r CaptureRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capturesFile == nil {
		return errors.New("captures file closed")
	}
	return json.NewEncoder(l.capturesFile).Encode(r)
}

func (l *fileLedger) RecordDelivery(ctx context.Context, r DeliveryRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deliveriesFile == nil {
		return errors.New("deliveries file closed")
	}
	return json.NewEncoder(l.deliveriesFile).Encode(r)
}

func (l *fileLedger) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	_ = ctx
	s := Summary{Since: since, Delivered: map[string]int{}, Dropped: map[string]int{}}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := scanLines(l.capturesPath, func(line []byte) {
		var r CaptureRecord
		if json.Unmarshal(line, &r) != nil || r.At.Before(since) {
			return
		}
		if !r.OK {
			s.CaptureFailures++
			return
		}
		s.Captures++
		switch r.Kind {
		case "scheduled":
			s.Scheduled++
		case "triggered":
			s.Triggered++
		}
		if r.Human {
			s.Human++
		}
		if r.Motion {
			s.Motion++
		}
	})
	if err != nil {
		return s, err
	}

	err = scanLines(l.deliveriesPath, func(line []byte) {
		var r DeliveryRecord
		if json.Unmarshal(line, &r) != nil || r.At.Before(since) {
			return
		}
		if r.OK {
			s.Delivered[r.Channel]++
		} else {
			s.Dropped[r.Channel]++
		}
	})
	return s, err
}

func scanLines(path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Bytes())
	}
	return sc.Err()
}
