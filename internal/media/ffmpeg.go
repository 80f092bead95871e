package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrTranscode marks every merge failure. It is fatal to a run.
var ErrTranscode = errors.New("transcoding failed")

// DropoutTransition is the amix fade (seconds) applied when an input ends early.
const DropoutTransition = 2

// Runner executes an external tool and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// MergedAudio is the single mixed artifact of a run.
type MergedAudio struct {
	Path        string
	Name        string
	Encoding    string
	SourceCount int
	Duration    time.Duration
}

// Merger mixes N recordings into one MP3 with ffmpeg's amix filter.
type Merger struct {
	FFmpeg string
	Runner Runner
	Prober *Prober
	log    *logrus.Entry
}

func NewMerger(ffmpegPath string, prober *Prober, log *logrus.Entry) *Merger {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Merger{
		FFmpeg: ffmpegPath,
		Runner: ExecRunner{},
		Prober: prober,
		log:    log.WithField("component", "media.merge"),
	}
}

// OutputName is unique per run so concurrent runs can share a temp dir.
func OutputName(now time.Time) string {
	return fmt.Sprintf("merged-%d-%s.mp3", now.UnixMilli(), uuid.NewString())
}

// MergeArgs builds the ffmpeg command line. Inputs are superimposed, so the
// output lasts as long as the longest input.
func MergeArgs(inputs []string, out string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	filter := fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=%d", len(inputs), DropoutTransition)
	return append(args,
		"-filter_complex", filter,
		"-c:a", "libmp3lame",
		"-q:a", "2",
		out,
	)
}

// Merge mixes inputs (primary first) into outPath.
func (m *Merger) Merge(ctx context.Context, inputs []string, outPath string) (MergedAudio, error) {
	if len(inputs) == 0 {
		return MergedAudio{}, fmt.Errorf("%w: no input streams", ErrTranscode)
	}
	log := m.log.WithField("inputs", len(inputs))

	var longest time.Duration
	if m.Prober != nil {
		for _, in := range inputs {
			d, err := m.Prober.Duration(ctx, in)
			if err != nil {
				// ffmpeg will report the real problem if the input is unusable
				log.WithField("file", filepath.Base(in)).WithField("error", err.Error()).Debug("duration probe failed")
				continue
			}
			if d > longest {
				longest = d
			}
		}
	}

	start := time.Now()
	out, err := m.Runner.Run(ctx, m.FFmpeg, MergeArgs(inputs, outPath)...)
	if err != nil {
		return MergedAudio{}, fmt.Errorf("%w: ffmpeg: %v: %s", ErrTranscode, err, lastLine(out))
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("audio merged")

	if longest == 0 && m.Prober != nil {
		if d, err := m.Prober.Duration(ctx, outPath); err == nil {
			longest = d
		}
	}
	return MergedAudio{
		Path:        outPath,
		Name:        filepath.Base(outPath),
		Encoding:    "audio/mpeg",
		SourceCount: len(inputs),
		Duration:    longest,
	}, nil
}

// lastLine keeps error messages short and free of full command output.
func lastLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
