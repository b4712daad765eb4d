package analysis

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/northcutted/chart-scan/pkg/types"
)

// ScanFunc scans one image. Implementations must report failures through
// the returned outcome rather than panicking.
type ScanFunc func(ctx context.Context, image types.ImageReference) types.ScanOutcome

// Options tunes ScanAll.
type Options struct {
	// Concurrency bounds the number of images scanned at once. Values
	// below one select DefaultConcurrency.
	Concurrency int
	// Progress, if set, is called after each image completes. Calls are
	// serialised.
	Progress func(done, total int, outcome types.ScanOutcome)
}

// DefaultConcurrency returns the fan-out width used when none is
// configured.
func DefaultConcurrency() int {
	return min(runtime.NumCPU(), 4)
}

// ScanAll scans every image with bounded parallelism and returns one
// outcome per image, in the order of images. A failing image never stops
// the others. Images whose task has not started when ctx is cancelled get
// a failure outcome carrying ctx.Err().
func ScanAll(ctx context.Context, images []types.ImageReference, scan ScanFunc, opts Options) []types.ScanOutcome {
	outcomes := make([]types.ScanOutcome, len(images))
	if len(images) == 0 {
		return outcomes
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = DefaultConcurrency()
	}

	var (
		mu   sync.Mutex
		done int
	)
	report := func(o types.ScanOutcome) {
		if opts.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		opts.Progress(done, len(images), o)
	}

	// Tasks always return nil; failures are recorded in the outcome slots.
	var g errgroup.Group
	g.SetLimit(limit)
	for i, image := range images {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = types.Failed(image, err)
			} else {
				outcomes[i] = scan(ctx, image)
			}
			report(outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
