package capture

import (
	"strings"
	"time"
)

const captionTimeFormat = "2006-01-02 15:04:05"

// BuildCaption renders the delivery caption for an artifact.
//
// Shape: "<host> <time> <kind>[ tags]", e.g.
//
//	"office-mba 2026-08-23 14:01:09 scheduled snapshot [human]"
//	"office-mba 2026-08-23 14:03:40 unlock evidence video"
func BuildCaption(host string, a Artifact) string {
	var b strings.Builder
	if host != "" {
		b.WriteString(host)
		b.WriteString(" ")
	}
	at := a.TakenAt
	if at.IsZero() {
		at = time.Now()
	}
	b.WriteString(at.Format(captionTimeFormat))

	switch a.Kind {
	case KindTriggeredEvidence:
		switch a.Reason {
		case ReasonWakeUnlock:
			b.WriteString(" unlock evidence")
		case ReasonHumanDetected:
			b.WriteString(" human evidence")
		case ReasonMotionDetected:
			b.WriteString(" motion evidence")
		default:
			b.WriteString(" evidence")
		}
		if a.IsVideo() {
			b.WriteString(" video")
		} else {
			b.WriteString(" snapshot")
		}
	default:
		b.WriteString(" scheduled snapshot")
	}

	var tags []string
	if a.Human {
		tags = append(tags, "human")
	}
	if a.Motion {
		tags = append(tags, "motion")
	}
	if len(tags) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(tags, ","))
		b.WriteString("]")
	}
	return b.String()
}
