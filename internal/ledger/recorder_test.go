package ledger

import (
	"context"
	"testing"
	"time"

	"lockwatch/internal/capture"
	"lockwatch/internal/delivery"
	"lockwatch/internal/eventbus"
	logx "lockwatch/pkg/logx"
)

func TestRecorderPersistsBusEvents(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t, "file")
	bus := eventbus.New()
	rec := NewRecorder(l, bus, logx.Nop())

	ctx := context.Background()
	rec.Start(ctx)
	defer rec.Stop()

	bus.Publish(eventbus.Event{Type: eventbus.TypeCaptureFinished, Data: capture.Event{
		Kind: "scheduled", Media: "photo", Human: true,
	}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeCaptureFailed, Data: capture.Event{
		Kind: "triggered", Reason: "wake-unlock", Error: "camera busy",
	}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeUploadDelivered, Data: delivery.Event{
		TaskID: "t1", Channel: "telegram", Media: "photo", Attempts: 1,
	}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeUploadFailed, Data: delivery.Event{
		TaskID: "t2", Channel: "feishu", Media: "photo", Attempts: 3, Error: "token invalid",
	}})
	// Intermediate lifecycle events are not persisted.
	bus.Publish(eventbus.Event{Type: eventbus.TypeUploadRetried, Data: delivery.Event{
		TaskID: "t3", Channel: "telegram",
	}})

	since := time.Now().Add(-time.Minute)
	deadline := time.Now().Add(2 * time.Second)
	var s Summary
	for time.Now().Before(deadline) {
		var err error
		s, err = l.Summarize(ctx, since)
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if s.Captures == 1 && s.CaptureFailures == 1 &&
			s.Delivered["telegram"] == 1 && s.Dropped["feishu"] == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("recorder did not persist expected records: %+v", s)
}

func TestRecorderDisabledLedger(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	rec := NewRecorder(nil, bus, logx.Nop())

	// With no ledger Start is a no-op and Stop must not hang.
	rec.Start(context.Background())
	bus.Publish(eventbus.Event{Type: eventbus.TypeCaptureFinished, Data: capture.Event{Kind: "scheduled"}})
	rec.Stop()
}
