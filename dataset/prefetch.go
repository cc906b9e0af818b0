package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/vae/ml"
)

type prefetched struct {
	query Query
	batch *ml.Tensor
}

// Prefetcher liest im Hintergrund Batches fester Groesse aus einer anderen
// Quelle und haelt bis zu depth davon vor
type Prefetcher struct {
	batchSize int
	batches   chan prefetched
	cancel    context.CancelFunc
	g         *errgroup.Group
}

// NewPrefetcher startet die Hintergrund-Goroutine. Close muss aufgerufen werden.
func NewPrefetcher(ctx context.Context, r Reader, batchSize, depth int) *Prefetcher {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	p := &Prefetcher{
		batchSize: batchSize,
		batches:   make(chan prefetched, max(depth, 1)),
		cancel:    cancel,
		g:         g,
	}

	g.Go(func() error {
		defer close(p.batches)
		for {
			query, batch, err := r.Read(gctx, batchSize)
			if err != nil {
				return err
			}
			select {
			case p.batches <- prefetched{query, batch}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	return p
}

func (p *Prefetcher) Read(ctx context.Context, batchSize int) (Query, *ml.Tensor, error) {
	if batchSize != p.batchSize {
		return Query{}, nil, fmt.Errorf("prefetcher delivers batches of %d, requested %d", p.batchSize, batchSize)
	}

	select {
	case b, ok := <-p.batches:
		if ok {
			return b.query, b.batch, nil
		}
		if err := p.g.Wait(); err != nil {
			return Query{}, nil, err
		}
		return Query{}, nil, io.EOF
	case <-ctx.Done():
		return Query{}, nil, ctx.Err()
	}
}

// Close stoppt die Goroutine und gibt ihren Fehler zurueck, ausser Abbruch
func (p *Prefetcher) Close() error {
	p.cancel()
	if err := p.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
