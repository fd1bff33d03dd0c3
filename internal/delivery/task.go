package delivery

import (
	"time"
)

type MediaKind int

const (
	MediaPhoto MediaKind = iota
	MediaVideo
	MediaDocument
	MediaText
)

func (m MediaKind) String() string {
	switch m {
	case MediaPhoto:
		return "photo"
	case MediaVideo:
		return "video"
	case MediaDocument:
		return "document"
	case MediaText:
		return "text"
	default:
		return "unknown"
	}
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Task is one artifact queued for delivery to one channel.
//
// Payload carries photo bytes; FilePath references a video or document on
// disk. A task is immutable once enqueued except RetryCount, which the queue
// increments on each retry re-enqueue. Credentials are never stored on the
// task; adapters resolve them at send time.
type Task struct {
	ID         string
	Media      MediaKind
	Payload    []byte
	FilePath   string
	Caption    string
	Priority   Priority
	RetryCount int
	EnqueuedAt time.Time

	// seq breaks FIFO ties between tasks enqueued within the same clock tick.
	seq uint64
}

// Event is the bus payload for upload lifecycle events.
type Event struct {
	TaskID   string        `json:"task_id"`
	Channel  string        `json:"channel"`
	Media    string        `json:"media"`
	Priority string        `json:"priority"`
	Attempts int           `json:"attempts"`
	Delay    time.Duration `json:"delay,omitempty"`
	Error    string        `json:"error,omitempty"`
}
