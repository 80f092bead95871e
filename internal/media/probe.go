package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// Prober reads audio durations: WAV headers directly, everything else through ffprobe.
type Prober struct {
	FFprobe string
	Runner  Runner
}

func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{FFprobe: ffprobePath, Runner: ExecRunner{}}
}

func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	if d, ok := wavDuration(path); ok {
		return d, nil
	}
	out, err := p.Runner.Run(ctx, p.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func wavDuration(path string) (time.Duration, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, false
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, false
	}
	return d, true
}
