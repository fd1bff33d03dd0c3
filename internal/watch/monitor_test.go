package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"lockwatch/internal/capture"
	"lockwatch/internal/eventbus"
	"lockwatch/internal/power"
	logx "lockwatch/pkg/logx"
)

type fakeEngine struct {
	mu        sync.Mutex
	snapshots int
	videos    int
	videoErr  error
	snapErr   error
}

func (e *fakeEngine) StartSession(ctx context.Context) error { return nil }
func (e *fakeEngine) StopSession(ctx context.Context) error  { return nil }

func (e *fakeEngine) CaptureSnapshot(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapErr != nil {
		return nil, e.snapErr
	}
	e.snapshots++
	return []byte(fmt.Sprintf("frame-%d", e.snapshots)), nil
}

func (e *fakeEngine) RecordVideo(ctx context.Context, d time.Duration) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.videoErr != nil {
		return "", e.videoErr
	}
	e.videos++
	return fmt.Sprintf("/tmp/video-%d.mp4", e.videos), nil
}

type fakeSink struct {
	ch chan capture.Artifact
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan capture.Artifact, 32)}
}

func (s *fakeSink) Dispatch(ctx context.Context, a capture.Artifact) {
	select {
	case s.ch <- a:
	default:
	}
}

func (s *fakeSink) next(t *testing.T, d time.Duration) capture.Artifact {
	t.Helper()
	select {
	case a := <-s.ch:
		return a
	case <-time.After(d):
		t.Fatalf("no artifact dispatched within %s", d)
		return capture.Artifact{}
	}
}

func testSettings(interval time.Duration) SettingsFunc {
	return func() Settings {
		return Settings{
			SnapshotInterval: interval,
			VideoDuration:    time.Millisecond,
			WarmupDelay:      0,
		}
	}
}

func newTestMonitor(eng capture.Engine, sink ArtifactSink, interval time.Duration) (*Monitor, *power.ChanSource) {
	src := power.NewChanSource(16)
	m := New(testSettings(interval), src, eng, capture.NullDetector{}, sink, eventbus.New(), logx.Nop())
	return m, src
}

func TestMonitorLockStartsCadence(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	sink := newFakeSink()
	m, src := newTestMonitor(eng, sink, 30*time.Millisecond)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(ctx)

	src.Emit(power.EventScreenLocked)

	a := sink.next(t, 2*time.Second)
	if a.Kind != capture.KindScheduledSnapshot {
		t.Fatalf("artifact kind = %v, want scheduled snapshot", a.Kind)
	}
	if a.IsVideo() {
		t.Fatalf("scheduled snapshot dispatched as video")
	}
	if m.State() != StateScreenLocked {
		t.Fatalf("state = %v, want screen-locked", m.State())
	}
}

func TestMonitorUnlockRunsEvidenceAndStopsCadence(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	sink := newFakeSink()
	m, src := newTestMonitor(eng, sink, 40*time.Millisecond)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(ctx)

	src.Emit(power.EventScreenLocked)
	sink.next(t, 2*time.Second) // first scheduled snapshot

	// Give the snapshot goroutine a moment to release the capture gate.
	time.Sleep(20 * time.Millisecond)
	src.Emit(power.EventScreenUnlocked)

	video := sink.next(t, 2*time.Second)
	if video.Kind != capture.KindTriggeredEvidence || !video.IsVideo() {
		t.Fatalf("first evidence artifact = %+v, want triggered video", video)
	}
	if video.Reason != capture.ReasonWakeUnlock {
		t.Fatalf("video reason = %v, want wake-unlock", video.Reason)
	}
	photo := sink.next(t, 2*time.Second)
	if photo.Kind != capture.KindTriggeredEvidence || photo.IsVideo() {
		t.Fatalf("second evidence artifact = %+v, want triggered photo", photo)
	}

	if m.State() != StateActive {
		t.Fatalf("state = %v, want active", m.State())
	}

	// The cadence is stopped while unlocked: no further artifacts.
	select {
	case a := <-sink.ch:
		t.Fatalf("unexpected artifact after unlock: %+v", a)
	case <-time.After(120 * time.Millisecond):
	}
}

func TestMonitorVideoFailureStillDeliversSnapshot(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{videoErr: errors.New("camera busy")}
	sink := newFakeSink()
	m, src := newTestMonitor(eng, sink, time.Minute)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(ctx)

	src.Emit(power.EventScreenLocked)
	time.Sleep(20 * time.Millisecond)
	src.Emit(power.EventScreenUnlocked)

	a := sink.next(t, 2*time.Second)
	if a.Kind != capture.KindTriggeredEvidence || a.IsVideo() {
		t.Fatalf("artifact = %+v, want the confirmatory photo despite video failure", a)
	}
}

func TestMonitorSystemSleepSuspendsCadence(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	sink := newFakeSink()
	m, src := newTestMonitor(eng, sink, 30*time.Millisecond)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(ctx)

	src.Emit(power.EventScreenLocked)
	sink.next(t, 2*time.Second)

	src.Emit(power.EventSystemWillSleep)
	// Drain anything captured before the stop landed, then expect silence.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-sink.ch:
			continue
		default:
		}
		break
	}
	select {
	case a := <-sink.ch:
		t.Fatalf("unexpected artifact while system sleeping: %+v", a)
	case <-time.After(100 * time.Millisecond):
	}

	// Did-wake while the lock state is preserved resumes the cadence.
	src.Emit(power.EventScreenLocked)
	src.Emit(power.EventSystemDidWake)
	sink.next(t, 2*time.Second)
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	sink := newFakeSink()
	m, _ := newTestMonitor(eng, sink, time.Minute)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	m.Stop(ctx)
	m.Stop(ctx)
}
