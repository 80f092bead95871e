// Package tempfiles tracks the transient files of one pipeline run.
package tempfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Guard owns every temp path acquired during a run. ReleaseAll removes them.
type Guard struct {
	dir   string
	runID string
	log   *logrus.Entry

	mu       sync.Mutex
	paths    []string
	released bool
}

func New(dir, runID string, log *logrus.Entry) *Guard {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Guard{dir: dir, runID: runID, log: log.WithField("component", "tempfiles")}
}

// Reserve returns a unique tracked path under the guard's dir without
// creating it, for tools that write their own output.
func (g *Guard) Reserve(name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return "", errors.New("tempfiles: guard already released")
	}
	p := filepath.Join(g.dir, fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], SafeName(name)))
	g.paths = append(g.paths, p)
	return p, nil
}

// Path tracks dir/name as given, for names that are already unique.
func (g *Guard) Path(name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return "", errors.New("tempfiles: guard already released")
	}
	p := filepath.Join(g.dir, SafeName(name))
	g.paths = append(g.paths, p)
	return p, nil
}

// WriteFile stores data in a new tracked file and returns its path.
func (g *Guard) WriteFile(name string, data []byte) (string, error) {
	p, err := g.Reserve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("stage %s: %w", SafeName(name), err)
	}
	return p, nil
}

// Paths returns a copy of the tracked paths.
func (g *Guard) Paths() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

// ReleaseAll removes every tracked path. Safe to call more than once;
// missing files are fine and other failures are only logged.
func (g *Guard) ReleaseAll() {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return
	}
	g.released = true
	paths := g.paths
	g.paths = nil
	g.mu.Unlock()

	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			g.log.WithField("run_id", g.runID).WithField("file", filepath.Base(p)).
				WithField("error", err.Error()).Warn("temp file cleanup failed")
		}
	}
	g.log.WithField("run_id", g.runID).WithField("removed", removed).Debug("temp files released")
}

// SafeName strips directories and characters that are awkward in object keys and paths.
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
