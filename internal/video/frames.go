package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	errs "github.com/edurank/gradeproof/internal/pkg/errors"
)

// Frame is one sampled still from the submitted recording.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Data      []byte
}

// Sampler probes and decodes video evidence. The orchestrator only sees
// this interface; production wires the ffmpeg implementation.
type Sampler interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
	Sample(ctx context.Context, path string, rate float64, maxFrames int) ([]Frame, error)
}

// CheckDuration enforces the submission bounds before any job is created.
func CheckDuration(d time.Duration, minSeconds, maxSeconds float64) error {
	if d.Seconds() < minSeconds {
		return fmt.Errorf("duration %.1fs: %w", d.Seconds(), errs.ErrVideoTooShort)
	}
	if d.Seconds() > maxSeconds {
		return fmt.Errorf("duration %.1fs: %w", d.Seconds(), errs.ErrVideoTooLong)
	}
	return nil
}

// FFmpegSampler shells out to ffprobe/ffmpeg.
type FFmpegSampler struct {
	FFprobeBin string
	FFmpegBin  string
}

func NewFFmpegSampler() *FFmpegSampler {
	return &FFmpegSampler{FFprobeBin: "ffprobe", FFmpegBin: "ffmpeg"}
}

func (s *FFmpegSampler) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, s.FFprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("probe video: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse probe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Sample extracts JPEG stills at the given rate into a temp directory and
// returns at most maxFrames of them, oldest first. Timestamps are derived
// from the sampling rate, not container metadata.
func (s *FFmpegSampler) Sample(ctx context.Context, path string, rate float64, maxFrames int) ([]Frame, error) {
	if rate <= 0 {
		rate = 1
	}
	dir, err := os.MkdirTemp("", "gradeproof-frames-*")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pattern := filepath.Join(dir, "frame_%05d.jpg")
	cmd := exec.CommandContext(ctx, s.FFmpegBin,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vf", fmt.Sprintf("fps=%g", rate),
		"-q:v", "2",
		pattern,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("sample video: %w: %s", err, strings.TrimSpace(string(out)))
	}

	names, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if maxFrames > 0 && len(names) > maxFrames {
		names = names[:maxFrames]
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no frames decoded: %w", errs.ErrNoEvidence)
	}

	frames := make([]Frame, 0, len(names))
	interval := time.Duration(float64(time.Second) / rate)
	for i, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", filepath.Base(name), err)
		}
		frames = append(frames, Frame{Index: i, Timestamp: time.Duration(i) * interval, Data: data})
	}
	return frames, nil
}
