package capture

import (
	"testing"
	"time"
)

func TestBuildCaption(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 8, 23, 14, 1, 9, 0, time.UTC)

	tests := []struct {
		name string
		host string
		a    Artifact
		want string
	}{
		{
			"scheduled snapshot",
			"office-mba",
			Artifact{Kind: KindScheduledSnapshot, TakenAt: at, Photo: []byte("x")},
			"office-mba 2026-08-23 14:01:09 scheduled snapshot",
		},
		{
			"scheduled with human tag",
			"office-mba",
			Artifact{Kind: KindScheduledSnapshot, TakenAt: at, Photo: []byte("x"), Human: true},
			"office-mba 2026-08-23 14:01:09 scheduled snapshot [human]",
		},
		{
			"scheduled with both tags",
			"office-mba",
			Artifact{Kind: KindScheduledSnapshot, TakenAt: at, Photo: []byte("x"), Human: true, Motion: true},
			"office-mba 2026-08-23 14:01:09 scheduled snapshot [human,motion]",
		},
		{
			"unlock evidence video",
			"office-mba",
			Artifact{Kind: KindTriggeredEvidence, Reason: ReasonWakeUnlock, TakenAt: at, VideoPath: "/tmp/v.mp4"},
			"office-mba 2026-08-23 14:01:09 unlock evidence video",
		},
		{
			"unlock evidence snapshot",
			"office-mba",
			Artifact{Kind: KindTriggeredEvidence, Reason: ReasonWakeUnlock, TakenAt: at, Photo: []byte("x")},
			"office-mba 2026-08-23 14:01:09 unlock evidence snapshot",
		},
		{
			"no hostname",
			"",
			Artifact{Kind: KindScheduledSnapshot, TakenAt: at, Photo: []byte("x")},
			"2026-08-23 14:01:09 scheduled snapshot",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := BuildCaption(tt.host, tt.a); got != tt.want {
				t.Fatalf("BuildCaption = %q, want %q", got, tt.want)
			}
		})
	}
}
