package dispatch

import (
	"context"
	"os"
	"time"

	"lockwatch/internal/capture"
	"lockwatch/internal/delivery"
	"lockwatch/internal/eventbus"
	logx "lockwatch/pkg/logx"
)

// Sender is one notification channel: Telegram, Feishu or WeChat-Work.
//
// Enabled/Configured are cheap synchronous checks against the live config;
// Send performs a single delivery attempt and classifies failures with
// delivery.NoRetry / delivery.RetryAfter.
type Sender interface {
	Name() string
	Enabled() bool
	Configured() bool
	Send(ctx context.Context, t delivery.Task) error
}

// Dispatcher fans one capture artifact out to every enabled and configured
// channel. Each channel owns an independent delivery queue; one channel's
// misconfiguration or failure never blocks another's delivery.
type Dispatcher struct {
	log  logx.Logger
	host string

	endpoints []endpoint
}

type endpoint struct {
	sender Sender
	queue  *delivery.Queue
}

func New(senders []Sender, cfg delivery.QueueConfig, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	host, _ := os.Hostname()
	d := &Dispatcher{log: log, host: host}
	for _, s := range senders {
		d.endpoints = append(d.endpoints, endpoint{
			sender: s,
			queue:  delivery.NewQueue(s.Name(), cfg, s.Send, log, bus),
		})
	}
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	for _, ep := range d.endpoints {
		ep.queue.Start(ctx)
	}
}

func (d *Dispatcher) Stop(ctx context.Context) {
	for _, ep := range d.endpoints {
		ep.queue.Stop(ctx)
	}
}

// Dispatch submits the artifact to every enabled channel's queue.
// With zero enabled channels this is a documented no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, a capture.Artifact) {
	t := d.newTask(a)
	d.submit(t)
}

// DispatchText sends a caption-only message (used for summary reports and
// video fallbacks on channels without video support).
func (d *Dispatcher) DispatchText(ctx context.Context, text string, prio delivery.Priority) {
	d.submit(delivery.Task{
		Media:    delivery.MediaText,
		Caption:  text,
		Priority: prio,
	})
}

func (d *Dispatcher) submit(t delivery.Task) {
	submitted := 0
	for _, ep := range d.endpoints {
		if !ep.sender.Enabled() {
			continue
		}
		if !ep.sender.Configured() {
			d.log.Warn("channel enabled but not configured; skipping",
				logx.String("channel", ep.sender.Name()))
			continue
		}
		// Each channel gets its own task copy: retry counts are per channel.
		_ = ep.queue.Enqueue(t)
		submitted++
	}
	if submitted == 0 {
		d.log.Info("no notification channel enabled; artifact not delivered",
			logx.String("media", t.Media.String()))
	}
}

func (d *Dispatcher) newTask(a capture.Artifact) delivery.Task {
	t := delivery.Task{
		Caption:    capture.BuildCaption(d.host, a),
		Priority:   artifactPriority(a),
		EnqueuedAt: time.Now(),
	}
	if a.IsVideo() {
		t.Media = delivery.MediaVideo
		t.FilePath = a.VideoPath
	} else {
		t.Media = delivery.MediaPhoto
		t.Payload = a.Photo
	}
	return t
}

// artifactPriority: triggered-evidence and human-tagged artifacts jump the
// queue ahead of routine scheduled snapshots.
func artifactPriority(a capture.Artifact) delivery.Priority {
	if a.Kind == capture.KindTriggeredEvidence || a.Human {
		return delivery.PriorityHigh
	}
	return delivery.PriorityNormal
}

// Queues exposes the per-channel queues for diagnostics.
func (d *Dispatcher) Queues() []*delivery.Queue {
	out := make([]*delivery.Queue, 0, len(d.endpoints))
	for _, ep := range d.endpoints {
		out = append(out, ep.queue)
	}
	return out
}
