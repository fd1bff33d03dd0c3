package delivery

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lockwatch/internal/eventbus"
	logx "lockwatch/pkg/logx"
)

// SendFunc performs one delivery attempt to a channel API.
//
// Return nil on success, a NoRetry-wrapped error for permanent failures,
// a RetryAfter-wrapped error to suggest a retry delay, or any other error
// for the default retryable path.
type SendFunc func(ctx context.Context, t Task) error

// QueueConfig controls retry behavior.
//
// Defaults: RetryMax 3 attempts per task, RetryMaxDelay 60s.
type QueueConfig struct {
	RetryMax      int
	RetryMaxDelay time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 60 * time.Second
	}
	return c
}

// Queue is a per-channel, priority-ordered, single-flight upload queue.
//
// One drain goroutine owns the queue: at most one send is in flight at any
// instant, which preserves channel API ordering and avoids concurrent-
// connection abuse. Ordering is priority-first; within equal priority,
// strict FIFO by enqueue time.
//
// Failed retryable sends are re-enqueued with an exponential backoff delay
// (2^retryCount seconds, capped); while a retry timer is pending the drain
// loop keeps serving other tasks. There is no bounded capacity: arrival
// rates here are seconds-to-minutes apart, so pressure control is not
// attempted.
type Queue struct {
	name string
	cfg  QueueConfig
	send SendFunc
	log  logx.Logger
	bus  eventbus.Bus

	mu     sync.Mutex
	tasks  taskHeap
	timers map[*time.Timer]struct{}
	seq    uint64
	stopCh chan struct{}
	done   chan struct{}
	wake   chan struct{}

	idSeq uint64
}

func NewQueue(name string, cfg QueueConfig, send SendFunc, log logx.Logger, bus eventbus.Bus) *Queue {
	return &Queue{
		name:   name,
		cfg:    cfg.withDefaults(),
		send:   send,
		log:    log.With(logx.String("channel", name)),
		bus:    bus,
		timers: map[*time.Timer]struct{}{},
		wake:   make(chan struct{}, 1),
	}
}

func (q *Queue) Name() string { return q.name }

// Len reports the number of queued (not in-flight) tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Start launches the drain goroutine. Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	done := make(chan struct{})
	q.stopCh = stopCh
	q.done = done
	go q.drain(ctx, stopCh, done)
	q.log.Debug("delivery queue started")
}

// Stop halts draining and cancels pending retry timers. Queued tasks are
// kept and will be served if the queue is started again; tasks whose retry
// timer was canceled are dropped (at-most-once across shutdown is not
// guaranteed). An in-flight send is not aborted; Stop waits for it.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	stopCh := q.stopCh
	done := q.done
	if stopCh == nil {
		q.mu.Unlock()
		return
	}
	q.stopCh = nil
	q.done = nil
	for tmr := range q.timers {
		tmr.Stop()
		delete(q.timers, tmr)
	}
	q.mu.Unlock()

	close(stopCh)
	select {
	case <-done:
		q.log.Debug("delivery queue stopped")
	case <-ctx.Done():
		q.log.Warn("delivery queue stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue inserts the task in priority order and returns immediately.
func (q *Queue) Enqueue(t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	if t.ID == "" {
		t.ID = q.newTaskID(t.EnqueuedAt)
	}

	q.mu.Lock()
	t.seq = q.seq
	q.seq++
	heap.Push(&q.tasks, t)
	q.mu.Unlock()

	q.publish(eventbus.TypeUploadQueued, t, 0, nil)
	q.log.Debug("task enqueued",
		logx.String("task", t.ID),
		logx.String("media", t.Media.String()),
		logx.String("priority", t.Priority.String()),
	)
	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) newTaskID(now time.Time) string {
	seq := atomic.AddUint64(&q.idSeq, 1)
	return fmt.Sprintf("up-%s-%x-%x", q.name, now.UnixNano(), seq)
}

func (q *Queue) drain(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		q.mu.Lock()
		var t Task
		have := q.tasks.Len() > 0
		if have {
			t = heap.Pop(&q.tasks).(Task)
		}
		q.mu.Unlock()

		if !have {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-q.wake:
			}
			continue
		}

		q.sendOne(ctx, t)
	}
}

func (q *Queue) sendOne(ctx context.Context, t Task) {
	start := time.Now()
	err := q.send(ctx, t)
	attempt := t.RetryCount + 1
	if err == nil {
		q.publish(eventbus.TypeUploadDelivered, t, 0, nil)
		q.log.Info("task delivered",
			logx.String("task", t.ID),
			logx.String("media", t.Media.String()),
			logx.Int("attempts", attempt),
			logx.Duration("dur", time.Since(start)),
		)
		return
	}
	if errors.Is(err, context.Canceled) {
		// Shutdown mid-send; not a channel failure.
		q.log.Debug("task send canceled", logx.String("task", t.ID))
		return
	}

	if IsNoRetry(err) {
		q.publish(eventbus.TypeUploadFailed, t, 0, err)
		q.log.Error("task dropped (permanent failure)",
			logx.String("task", t.ID),
			logx.String("media", t.Media.String()),
			logx.Int("attempts", attempt),
			logx.Err(err),
		)
		return
	}

	if attempt >= q.cfg.RetryMax {
		q.publish(eventbus.TypeUploadFailed, t, 0, err)
		q.log.Error("task dropped (retry budget exhausted)",
			logx.String("task", t.ID),
			logx.String("media", t.Media.String()),
			logx.Int("attempts", attempt),
			logx.Err(err),
		)
		return
	}

	t.RetryCount++
	delay := q.retryDelay(t.RetryCount, err)
	q.publish(eventbus.TypeUploadRetried, t, delay, err)
	q.log.Warn("task send failed; retry scheduled",
		logx.String("task", t.ID),
		logx.Int("attempt", attempt),
		logx.Duration("delay", delay),
		logx.Err(err),
	)
	q.scheduleRetry(t, delay)
}

// retryDelay is 2^retryCount seconds, unless the error carries an explicit
// retry-after hint; both are capped at RetryMaxDelay.
func (q *Queue) retryDelay(retryCount int, err error) time.Duration {
	maxD := q.cfg.RetryMaxDelay

	var ra RetryAfterError
	if errors.As(err, &ra) {
		d := ra.RetryAfter()
		if d < 0 {
			d = 0
		}
		if d > maxD {
			d = maxD
		}
		return d
	}

	if retryCount < 1 {
		retryCount = 1
	}
	d := time.Duration(1<<uint(retryCount)) * time.Second
	if d > maxD || d <= 0 {
		d = maxD
	}
	return d
}

// scheduleRetry re-enqueues the task after the backoff delay. The retried
// task re-enters the same priority queue; the drain loop keeps serving other
// tasks while the timer is pending.
func (q *Queue) scheduleRetry(t Task, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopCh == nil {
		return
	}
	var tmr *time.Timer
	tmr = time.AfterFunc(delay, func() {
		q.mu.Lock()
		_, pending := q.timers[tmr]
		if pending {
			delete(q.timers, tmr)
			t.seq = q.seq
			q.seq++
			heap.Push(&q.tasks, t)
		}
		q.mu.Unlock()
		if pending {
			q.signal()
		}
	})
	q.timers[tmr] = struct{}{}
}

func (q *Queue) publish(typ string, t Task, delay time.Duration, err error) {
	if q.bus == nil {
		return
	}
	ev := Event{
		TaskID:   t.ID,
		Channel:  q.name,
		Media:    t.Media.String(),
		Priority: t.Priority.String(),
		Attempts: t.RetryCount + 1,
		Delay:    delay,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	q.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// ---- priority heap ----

// taskHeap orders by priority (high first), then enqueue time, then seq.
type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
