package pipeline

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one video in a batch.
type BatchResult struct {
	VideoID string
	Result  *Result
	Err     error
}

// Batch runs independent videos concurrently, at most parallel at a time
// (unbounded when parallel <= 0). A failed video does not stop the others;
// results come back in input order.
func (p *Pipeline) Batch(ctx context.Context, inputs []Input, parallel int) []BatchResult {
	out := make([]BatchResult, len(inputs))
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, in := range inputs {
		if in.VideoID == "" {
			in.VideoID = uuid.NewString()
		}
		out[i].VideoID = in.VideoID
		g.Go(func() error {
			res, err := p.Run(ctx, in)
			out[i].Result, out[i].Err = res, err
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, br := range out {
		if br.Err != nil {
			failed++
		}
	}
	diagf("[Pipeline] batch of %d videos finished, %d failed", len(out), failed)
	return out
}
