// Package report produces the scheduled activity summary: a text digest of
// the ledger's capture and delivery counts, pushed through the normal
// delivery pipeline at low priority.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lockwatch/internal/delivery"
	"lockwatch/internal/ledger"
	logx "lockwatch/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string        // cron spec; default "0 9 * * *"
	Timezone string        // IANA name; empty means local
	Window   time.Duration // lookback; default 24h
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = "0 9 * * *"
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
	return c
}

// TextSink receives the rendered digest. Implemented by dispatch.Dispatcher.
type TextSink interface {
	DispatchText(ctx context.Context, text string, prio delivery.Priority)
}

type Service struct {
	cfg    Config
	ledger ledger.Ledger
	sink   TextSink
	log    logx.Logger
	parser cron.Parser

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, l ledger.Ledger, sink TextSink, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		ledger: l,
		sink:   sink,
		log:    log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	if s.ledger == nil {
		s.log.Warn("report enabled but ledger disabled; reports will be empty counts only")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("report timezone %q: %w", tz, err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.emit(ctx) }); err != nil {
		return fmt.Errorf("report schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c = c
	s.log.Info("report scheduled",
		logx.String("spec", s.cfg.Schedule),
		logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("report stop: job still running at deadline")
	}
}

func (s *Service) emit(ctx context.Context) {
	now := time.Now()
	var sum ledger.Summary
	if s.ledger != nil {
		var err error
		sum, err = s.ledger.Summarize(ctx, now.Add(-s.cfg.Window))
		if err != nil {
			s.log.Error("report summarize failed", logx.Err(err))
			return
		}
	}
	s.sink.DispatchText(ctx, BuildText(sum, now, s.cfg.Window), delivery.PriorityLow)
	s.log.Info("report dispatched")
}

// ValidateSchedule rejects a bad cron spec or timezone before it is
// committed by a config reload.
func ValidateSchedule(spec, tz string) error {
	if strings.TrimSpace(spec) != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("report schedule %q: %w", spec, err)
		}
	}
	if tz = strings.TrimSpace(tz); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("report timezone %q: %w", tz, err)
		}
	}
	return nil
}

// BuildText renders the digest. Pure; shared with tests.
func BuildText(s ledger.Summary, now time.Time, window time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Activity summary %s (last %s)\n", now.Format("2006-01-02 15:04"), window)
	fmt.Fprintf(&b, "Captures: %d (%d scheduled, %d triggered)\n", s.Captures, s.Scheduled, s.Triggered)
	if s.Human > 0 || s.Motion > 0 {
		fmt.Fprintf(&b, "Detections: %d human, %d motion\n", s.Human, s.Motion)
	}
	if s.CaptureFailures > 0 {
		fmt.Fprintf(&b, "Capture failures: %d\n", s.CaptureFailures)
	}
	for _, ch := range sortedKeys(s.Delivered) {
		fmt.Fprintf(&b, "Delivered via %s: %d\n", ch, s.Delivered[ch])
	}
	for _, ch := range sortedKeys(s.Dropped) {
		fmt.Fprintf(&b, "Dropped on %s: %d\n", ch, s.Dropped[ch])
	}
	if s.Empty() {
		b.WriteString("No activity recorded.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
