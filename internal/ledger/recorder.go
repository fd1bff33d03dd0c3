package ledger

import (
	"context"
	"sync"
	"time"

	"lockwatch/internal/capture"
	"lockwatch/internal/delivery"
	"lockwatch/internal/eventbus"
	logx "lockwatch/pkg/logx"
)

// Recorder subscribes to the bus and persists capture outcomes and terminal
// delivery outcomes. Intermediate retries pass through unrecorded.
type Recorder struct {
	ledger Ledger
	bus    eventbus.Bus
	log    logx.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
}

func NewRecorder(l Ledger, bus eventbus.Bus, log logx.Logger) *Recorder {
	return &Recorder{ledger: l, bus: bus, log: log}
}

func (r *Recorder) Start(ctx context.Context) {
	if r.ledger == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	stopDone := make(chan struct{})
	r.stopCh = stopCh
	r.stopDone = stopDone

	events, unsub := r.bus.Subscribe(64)
	go r.loop(ctx, events, unsub, stopCh, stopDone)
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	stopCh := r.stopCh
	stopDone := r.stopDone
	r.stopCh = nil
	r.stopDone = nil
	r.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopDone
}

func (r *Recorder) loop(ctx context.Context, events <-chan eventbus.Event, unsub func(), stopCh <-chan struct{}, stopDone chan<- struct{}) {
	defer close(stopDone)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			r.record(ctx, e)
		}
	}
}

func (r *Recorder) record(ctx context.Context, e eventbus.Event) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	var err error
	switch e.Type {
	case eventbus.TypeCaptureFinished:
		ce, ok := e.Data.(capture.Event)
		if !ok {
			return
		}
		err = r.ledger.RecordCapture(wctx, CaptureRecord{
			At: e.Time, Kind: ce.Kind, Reason: ce.Reason, Media: ce.Media,
			Human: ce.Human, Motion: ce.Motion, OK: true,
		})
	case eventbus.TypeCaptureFailed:
		ce, ok := e.Data.(capture.Event)
		if !ok {
			return
		}
		err = r.ledger.RecordCapture(wctx, CaptureRecord{
			At: e.Time, Kind: ce.Kind, Reason: ce.Reason, OK: false, Error: ce.Error,
		})
	case eventbus.TypeUploadDelivered:
		de, ok := e.Data.(delivery.Event)
		if !ok {
			return
		}
		err = r.ledger.RecordDelivery(wctx, DeliveryRecord{
			At: e.Time, Channel: de.Channel, TaskID: de.TaskID, Media: de.Media,
			Attempts: de.Attempts, OK: true,
		})
	case eventbus.TypeUploadFailed:
		de, ok := e.Data.(delivery.Event)
		if !ok {
			return
		}
		err = r.ledger.RecordDelivery(wctx, DeliveryRecord{
			At: e.Time, Channel: de.Channel, TaskID: de.TaskID, Media: de.Media,
			Attempts: de.Attempts, OK: false, Error: de.Error,
		})
	default:
		return
	}
	if err != nil {
		r.log.Warn("ledger write failed", logx.String("event", e.Type), logx.Err(err))
	}
}
