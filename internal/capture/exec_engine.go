package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "lockwatch/pkg/logx"
)

// ExecConfig configures the command-backed capture engine.
//
// Commands are argv slices; the placeholders {output} and {duration} are
// substituted before execution. {duration} is whole seconds.
//
// Example (fswebcam + ffmpeg):
//
//	snapshot_command: ["fswebcam", "--no-banner", "{output}"]
//	video_command: ["ffmpeg", "-y", "-f", "v4l2", "-i", "/dev/video0", "-t", "{duration}", "{output}"]
type ExecConfig struct {
	SnapshotCommand []string
	VideoCommand    []string

	// Dir is where video files are written. Defaults to os.TempDir().
	Dir string
}

var ErrNotConfigured = errors.New("capture: no command configured")

// ExecEngine shells out to external tools for the actual pixel capture.
// One capture at a time is enforced with an internal mutex, matching the
// single-recording constraint of real camera devices.
type ExecEngine struct {
	mu  sync.Mutex
	cfg ExecConfig
	log logx.Logger

	// Serializes snapshot and video runs against the device.
	devMu sync.Mutex
}

func NewExecEngine(cfg ExecConfig, log logx.Logger) *ExecEngine {
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = os.TempDir()
	}
	return &ExecEngine{cfg: cfg, log: log}
}

// Apply swaps the commands at runtime (config hot reload). An in-flight
// capture finishes with the commands it started with.
func (e *ExecEngine) Apply(cfg ExecConfig) {
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = os.TempDir()
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *ExecEngine) config() ExecConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *ExecEngine) StartSession(ctx context.Context) error { return nil }
func (e *ExecEngine) StopSession(ctx context.Context) error  { return nil }

func (e *ExecEngine) CaptureSnapshot(ctx context.Context) ([]byte, error) {
	cfg := e.config()
	if len(cfg.SnapshotCommand) == 0 {
		return nil, ErrNotConfigured
	}
	e.devMu.Lock()
	defer e.devMu.Unlock()

	out := filepath.Join(cfg.Dir, fmt.Sprintf("snap-%d.jpg", time.Now().UnixNano()))
	defer os.Remove(out)

	if err := e.runCommand(ctx, cfg.SnapshotCommand, out, 0); err != nil {
		return nil, fmt.Errorf("snapshot command: %w", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("snapshot output: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("snapshot output is empty")
	}
	return b, nil
}

func (e *ExecEngine) RecordVideo(ctx context.Context, duration time.Duration) (string, error) {
	cfg := e.config()
	if len(cfg.VideoCommand) == 0 {
		return "", ErrNotConfigured
	}
	e.devMu.Lock()
	defer e.devMu.Unlock()

	out := filepath.Join(cfg.Dir, fmt.Sprintf("evidence-%d.mp4", time.Now().UnixNano()))
	if err := e.runCommand(ctx, cfg.VideoCommand, out, duration); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("video command: %w", err)
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		_ = os.Remove(out)
		return "", errors.New("video output is missing or empty")
	}
	return out, nil
}

func (e *ExecEngine) runCommand(ctx context.Context, argv []string, output string, duration time.Duration) error {
	args := make([]string, 0, len(argv))
	for _, a := range argv {
		a = strings.ReplaceAll(a, "{output}", output)
		if duration > 0 {
			secs := int(duration / time.Second)
			if secs < 1 {
				secs = 1
			}
			a = strings.ReplaceAll(a, "{duration}", strconv.Itoa(secs))
		}
		args = append(args, a)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		e.log.Warn("capture command failed",
			logx.String("cmd", args[0]),
			logx.Err(err),
			logx.String("output", truncate(string(out), 400)),
		)
		return err
	}
	e.log.Debug("capture command ok", logx.String("cmd", args[0]), logx.Duration("dur", time.Since(start)))
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
