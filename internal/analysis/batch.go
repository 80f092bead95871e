package analysis

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Analyzer is satisfied by *Client and by test doubles.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, kind Kind) (string, error)
}

// Outcome is the result of one prompt kind.
type Outcome struct {
	Text string
	Err  error
}

// AnalyzeAll issues every kind concurrently and joins the results. A failing
// kind never cancels or alters the others; callers apply their own policy
// to the per-kind errors.
func AnalyzeAll(ctx context.Context, a Analyzer, transcript string) map[Kind]Outcome {
	var (
		g   errgroup.Group
		mu  sync.Mutex
		out = make(map[Kind]Outcome, len(Kinds))
	)
	for _, kind := range Kinds {
		kind := kind
		g.Go(func() error {
			text, err := a.Analyze(ctx, transcript, kind)
			mu.Lock()
			out[kind] = Outcome{Text: text, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
