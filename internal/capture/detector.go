package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "lockwatch/pkg/logx"
)

// DetectorConfig configures the built-in detector.
//
// Motion detection is a coarse frame-difference check between consecutive
// scheduled snapshots; it needs no external tooling. Human detection shells
// out to an external classifier when one is configured: the command receives
// the image path as {input} and signals "human present" with exit code 0.
type DetectorConfig struct {
	// MotionThreshold is the mean per-pixel luminance delta (0..255) above
	// which two frames count as motion. Defaults to 12.
	MotionThreshold float64

	// HumanCommand is an argv slice; empty disables human detection.
	HumanCommand []string

	// Dir is where temp images for the human classifier are written.
	// Defaults to os.TempDir().
	Dir string
}

// ExecDetector implements Detector with the config above.
type ExecDetector struct {
	mu  sync.Mutex
	cfg DetectorConfig
	log logx.Logger
}

func NewExecDetector(cfg DetectorConfig, log logx.Logger) *ExecDetector {
	return &ExecDetector{cfg: normalizeDetectorConfig(cfg), log: log}
}

func (d *ExecDetector) Apply(cfg DetectorConfig) {
	d.mu.Lock()
	d.cfg = normalizeDetectorConfig(cfg)
	d.mu.Unlock()
}

func normalizeDetectorConfig(cfg DetectorConfig) DetectorConfig {
	if cfg.MotionThreshold <= 0 {
		cfg.MotionThreshold = 12
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = os.TempDir()
	}
	return cfg
}

func (d *ExecDetector) config() DetectorConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *ExecDetector) DetectHuman(img []byte) bool {
	cfg := d.config()
	if len(cfg.HumanCommand) == 0 || len(img) == 0 {
		return false
	}

	path := filepath.Join(cfg.Dir, "detect-"+strconv.FormatInt(time.Now().UnixNano(), 10)+".jpg")
	if err := os.WriteFile(path, img, 0o600); err != nil {
		d.log.Warn("human detect: temp image write failed", logx.Err(err))
		return false
	}
	defer os.Remove(path)

	args := make([]string, 0, len(cfg.HumanCommand))
	for _, a := range cfg.HumanCommand {
		args = append(args, strings.ReplaceAll(a, "{input}", path))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := exec.CommandContext(ctx, args[0], args[1:]...).Run()
	if err == nil {
		return true
	}
	// A nonzero exit is the classifier saying "no human"; anything else is a
	// real failure worth logging.
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		d.log.Warn("human detect command failed", logx.String("cmd", args[0]), logx.Err(err))
	}
	return false
}

// DetectMotion compares downsampled grayscale versions of the two frames.
// Decode failures count as no motion; a capture pipeline should never tag
// aggressively on bad input.
func (d *ExecDetector) DetectMotion(current, previous []byte) bool {
	if len(current) == 0 || len(previous) == 0 {
		return false
	}
	cur, err := decodeGray(current)
	if err != nil {
		return false
	}
	prev, err := decodeGray(previous)
	if err != nil {
		return false
	}
	if len(cur) != len(prev) || len(cur) == 0 {
		// Resolution changed between frames; treat as motion.
		return true
	}

	var total int64
	for i := range cur {
		delta := int64(cur[i]) - int64(prev[i])
		if delta < 0 {
			delta = -delta
		}
		total += delta
	}
	mean := float64(total) / float64(len(cur))
	return mean >= d.config().MotionThreshold
}

// decodeGray decodes and downsamples to a fixed 64x48 luminance grid so the
// comparison cost is independent of camera resolution.
func decodeGray(b []byte) ([]uint8, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	const gw, gh = 64, 48
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, image.ErrFormat
	}
	out := make([]uint8, gw*gh)
	for gy := 0; gy < gh; gy++ {
		for gx := 0; gx < gw; gx++ {
			x := bounds.Min.X + gx*w/gw
			y := bounds.Min.Y + gy*h/gh
			r, g, bl, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma, 16-bit channels down to 8.
			lum := (299*r + 587*g + 114*bl) / 1000
			out[gy*gw+gx] = uint8(lum >> 8)
		}
	}
	return out, nil
}
