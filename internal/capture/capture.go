package capture

import (
	"context"
	"time"
)

// Kind distinguishes the two capture shapes.
type Kind int

const (
	// KindScheduledSnapshot is a single photo taken on the lock-screen cadence.
	KindScheduledSnapshot Kind = iota
	// KindTriggeredEvidence is the multi-step wake/unlock flow: warm-up,
	// one video, one confirmatory snapshot.
	KindTriggeredEvidence
)

func (k Kind) String() string {
	switch k {
	case KindScheduledSnapshot:
		return "scheduled"
	case KindTriggeredEvidence:
		return "triggered"
	default:
		return "unknown"
	}
}

// Reason records why a triggered-evidence capture ran.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonWakeUnlock
	ReasonHumanDetected
	ReasonMotionDetected
)

func (r Reason) String() string {
	switch r {
	case ReasonWakeUnlock:
		return "wake-unlock"
	case ReasonHumanDetected:
		return "human-detected"
	case ReasonMotionDetected:
		return "motion-detected"
	default:
		return ""
	}
}

// Artifact is a captured photo or video awaiting delivery.
//
// Exactly one of Photo / VideoPath is set.
type Artifact struct {
	Kind    Kind
	Reason  Reason
	TakenAt time.Time

	Photo     []byte
	VideoPath string

	// Detector tags; drive caption text and delivery priority.
	Human  bool
	Motion bool
}

func (a Artifact) IsVideo() bool { return a.VideoPath != "" }

// Engine acquires media from the camera.
//
// Implementations must allow only one capture or recording at a time and
// report failures synchronously to the caller.
type Engine interface {
	StartSession(ctx context.Context) error
	StopSession(ctx context.Context) error

	// CaptureSnapshot takes a single photo and returns the encoded bytes.
	CaptureSnapshot(ctx context.Context) ([]byte, error)

	// RecordVideo records for the given duration and returns the file path.
	RecordVideo(ctx context.Context, duration time.Duration) (string, error)
}

// Detector tags artifacts. Pure functions of the image content.
type Detector interface {
	DetectHuman(image []byte) bool
	DetectMotion(current, previous []byte) bool
}

// NullDetector tags nothing. Used when no detector backend is wired.
type NullDetector struct{}

func (NullDetector) DetectHuman(image []byte) bool             { return false }
func (NullDetector) DetectMotion(current, previous []byte) bool { return false }
