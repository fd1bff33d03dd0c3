// Package watch owns the power/lock state machine and drives the capture
// pipeline from it: a snapshot cadence while the screen is locked or
// sleeping, and a triggered evidence sequence on wake or unlock.
package watch

import (
	"context"
	"sync"
	"time"

	"lockwatch/internal/capture"
	"lockwatch/internal/eventbus"
	"lockwatch/internal/power"
	logx "lockwatch/pkg/logx"
)

// Settings carries the parsed monitor timings. Resolved through a func so a
// config reload takes effect on the next capture without restarting the
// monitor.
type Settings struct {
	SnapshotInterval time.Duration
	VideoDuration    time.Duration
	WarmupDelay      time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.SnapshotInterval <= 0 {
		s.SnapshotInterval = time.Minute
	}
	if s.VideoDuration <= 0 {
		s.VideoDuration = 10 * time.Second
	}
	if s.WarmupDelay < 0 {
		s.WarmupDelay = 0
	}
	return s
}

type SettingsFunc func() Settings

// ArtifactSink receives finished captures. Implemented by dispatch.Dispatcher.
type ArtifactSink interface {
	Dispatch(ctx context.Context, a capture.Artifact)
}

// Monitor consumes power events, holds the current State and applies the
// Transition table's effects: starting and stopping the snapshot cadence and
// running the triggered evidence sequence.
type Monitor struct {
	cfg  SettingsFunc
	src  power.Source
	eng  capture.Engine
	det  capture.Detector
	sink ArtifactSink
	bus  eventbus.Bus
	log  logx.Logger

	sched *capture.Scheduler

	// gate serializes camera use between the cadence and the evidence
	// sequence. A tick that finds it held is skipped, not queued.
	gate chan struct{}

	mu       sync.Mutex
	state    State
	stopCh   chan struct{}
	stopDone chan struct{}

	prevMu sync.Mutex
	prev   []byte

	wg sync.WaitGroup
}

func New(cfg SettingsFunc, src power.Source, eng capture.Engine, det capture.Detector, sink ArtifactSink, bus eventbus.Bus, log logx.Logger) *Monitor {
	if det == nil {
		det = capture.NullDetector{}
	}
	m := &Monitor{
		cfg:  cfg,
		src:  src,
		eng:  eng,
		det:  det,
		sink: sink,
		bus:  bus,
		log:  log,
		gate: make(chan struct{}, 1),
	}
	m.sched = capture.NewScheduler(m.scheduledSnapshot, log)
	return m
}

// State returns the machine's current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return nil
	}
	stopCh := make(chan struct{})
	stopDone := make(chan struct{})
	m.stopCh = stopCh
	m.stopDone = stopDone
	m.state = StateActive
	m.mu.Unlock()

	if err := m.src.Start(ctx); err != nil {
		m.mu.Lock()
		m.stopCh = nil
		m.stopDone = nil
		m.mu.Unlock()
		close(stopDone)
		return err
	}

	go m.loop(ctx, stopCh, stopDone)
	m.log.Info("monitor started")
	return nil
}

func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	stopCh := m.stopCh
	stopDone := m.stopDone
	m.stopCh = nil
	m.stopDone = nil
	m.mu.Unlock()
	if stopCh == nil {
		return
	}

	m.src.Stop()
	close(stopCh)
	<-stopDone

	// Let in-flight captures finish, bounded by the caller's deadline.
	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		m.log.Warn("monitor stop: capture still in flight at deadline")
	}
	// After the captures: a finishing evidence sequence restarts the cadence
	// only while the monitor is running, so this stop is final.
	m.sched.Stop()
	m.log.Info("monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, stopCh <-chan struct{}, stopDone chan<- struct{}) {
	defer close(stopDone)
	events := m.src.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, ev)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev power.Event) {
	m.mu.Lock()
	cur := m.state
	eff := Transition(cur, ev)
	m.state = eff.Next
	m.mu.Unlock()

	if eff.Next != cur {
		m.log.Info("state changed",
			logx.String("event", ev.String()),
			logx.String("from", cur.String()),
			logx.String("to", eff.Next.String()))
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeStateChanged, Data: map[string]string{
			"event": ev.String(),
			"from":  cur.String(),
			"to":    eff.Next.String(),
		}})
	}

	if eff.StopCadence {
		m.sched.Stop()
	}
	if eff.RunEvidence {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runEvidence(ctx, capture.ReasonWakeUnlock)
		}()
	}
	if eff.StartCadence {
		m.sched.Start(ctx, m.cfg().withDefaults().SnapshotInterval)
	}
}

// runEvidence performs the triggered sequence: warm-up, one video, one
// confirmatory snapshot. Each artifact is dispatched as soon as it exists so
// a later step's failure never loses an earlier step's evidence.
func (m *Monitor) runEvidence(ctx context.Context, reason capture.Reason) {
	if !m.acquire() {
		m.log.Warn("evidence sequence skipped: capture already in progress")
		return
	}
	defer m.release()
	defer m.resumeCadence(ctx)

	cfg := m.cfg().withDefaults()
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeCaptureStarted, Data: capture.Event{
		Kind:   capture.KindTriggeredEvidence.String(),
		Reason: reason.String(),
	}})

	if err := m.eng.StartSession(ctx); err != nil {
		m.failed(capture.KindTriggeredEvidence, reason, err)
		return
	}
	defer func() {
		if err := m.eng.StopSession(ctx); err != nil {
			m.log.Warn("capture session stop", logx.Err(err))
		}
	}()

	if cfg.WarmupDelay > 0 {
		t := time.NewTimer(cfg.WarmupDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	if path, err := m.eng.RecordVideo(ctx, cfg.VideoDuration); err != nil {
		m.failed(capture.KindTriggeredEvidence, reason, err)
	} else {
		m.emit(ctx, capture.Artifact{
			Kind:      capture.KindTriggeredEvidence,
			Reason:    reason,
			TakenAt:   time.Now(),
			VideoPath: path,
		})
	}

	img, err := m.eng.CaptureSnapshot(ctx)
	if err != nil {
		m.failed(capture.KindTriggeredEvidence, reason, err)
		return
	}
	m.emit(ctx, capture.Artifact{
		Kind:    capture.KindTriggeredEvidence,
		Reason:  reason,
		TakenAt: time.Now(),
		Photo:   img,
		Human:   m.det.DetectHuman(img),
	})
}

// resumeCadence re-checks the state after an evidence sequence: a lock event
// that arrived mid-sequence means the cadence must run again.
func (m *Monitor) resumeCadence(ctx context.Context) {
	m.mu.Lock()
	st := m.state
	running := m.stopCh != nil
	m.mu.Unlock()
	if !running {
		m.sched.Stop()
		return
	}
	switch st {
	case StateScreenLocked, StateScreenSleeping:
		m.sched.Start(ctx, m.cfg().withDefaults().SnapshotInterval)
	default:
		m.sched.Stop()
	}
}

// scheduledSnapshot is the cadence tick. The scheduler calls it inline, so
// the actual capture runs on its own goroutine and the tick returns at once.
func (m *Monitor) scheduledSnapshot(ctx context.Context) {
	if !m.acquire() {
		m.log.Debug("scheduled snapshot skipped: capture already in progress")
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release()
		m.takeSnapshot(ctx)
	}()
}

func (m *Monitor) takeSnapshot(ctx context.Context) {
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeCaptureStarted, Data: capture.Event{
		Kind: capture.KindScheduledSnapshot.String(),
	}})

	img, err := m.eng.CaptureSnapshot(ctx)
	if err != nil {
		m.failed(capture.KindScheduledSnapshot, capture.ReasonNone, err)
		return
	}

	m.prevMu.Lock()
	prev := m.prev
	m.prev = img
	m.prevMu.Unlock()

	a := capture.Artifact{
		Kind:    capture.KindScheduledSnapshot,
		TakenAt: time.Now(),
		Photo:   img,
		Human:   m.det.DetectHuman(img),
	}
	if prev != nil {
		a.Motion = m.det.DetectMotion(img, prev)
	}
	switch {
	case a.Human:
		a.Reason = capture.ReasonHumanDetected
	case a.Motion:
		a.Reason = capture.ReasonMotionDetected
	}
	m.emit(ctx, a)
}

func (m *Monitor) emit(ctx context.Context, a capture.Artifact) {
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeCaptureFinished, Data: capture.BusEvent(a)})
	m.sink.Dispatch(ctx, a)
}

func (m *Monitor) failed(kind capture.Kind, reason capture.Reason, err error) {
	m.log.Error("capture failed",
		logx.String("kind", kind.String()),
		logx.Err(err))
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeCaptureFailed, Data: capture.Event{
		Kind:   kind.String(),
		Reason: reason.String(),
		Error:  err.Error(),
	}})
}

func (m *Monitor) acquire() bool {
	select {
	case m.gate <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Monitor) release() { <-m.gate }
