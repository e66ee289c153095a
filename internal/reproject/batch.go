package reproject

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/reproject/internal/coord"
	"github.com/pspoerri/reproject/internal/gridshift"
)

// DefaultBatchSize is the number of points per batch when none is given.
const DefaultBatchSize = 4096

// BatchFunc is called after each finished batch with the number of points
// it held. It may be called from several goroutines at once.
type BatchFunc func(points int)

// ReprojectBatches splits the whole of xy into disjoint ranges of batchSize
// points and reprojects them on up to workers goroutines. Cancelling ctx
// stops new batches from being scheduled; running ones complete. The
// returned report lists warnings in point order.
func ReprojectBatches(ctx context.Context, e *Engine, xy, z []float64, src, dst *coord.ProjectionInfo, batchSize, workers int, done BatchFunc) (*gridshift.Report, error) {
	n := len(xy) / 2
	if err := validate(xy, z, src, dst, 0, n); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	numBatches := (n + batchSize - 1) / batchSize
	reports := make([]*gridshift.Report, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < numBatches; b++ {
		if gctx.Err() != nil {
			break
		}
		start := b * batchSize
		count := min(batchSize, n-start)
		g.Go(func() error {
			r, err := e.ReprojectPoints(xy, z, src, dst, start, count)
			reports[b] = r
			if err != nil {
				return err
			}
			if done != nil {
				done(count)
			}
			return nil
		})
	}
	err := g.Wait()

	report := &gridshift.Report{}
	for _, r := range reports {
		report.Merge(r)
	}
	if err != nil {
		return report, err
	}
	return report, ctx.Err()
}
