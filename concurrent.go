package jfr

import (
	"context"
	"iter"

	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"
)

type chunkResult struct {
	chunk *Chunk
	err   error
}

// ChunksConcurrent decodes chunk bodies on up to WithWorkers goroutines and yields them in
// file order, with the same error semantics as Chunks.
//
// Headers are framed first in one sequential pass (see Boundaries), then every body is
// decoded from its own read-only byte range. At most twice the worker count of decoded
// chunks wait for the consumer at any time. Stopping the iteration early, through the
// consumer or WithStop, cancels pending work; all goroutines have exited when the iteration
// returns.
func (d *Decoder) ChunksConcurrent(ctx context.Context) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		bounds, frameErr := d.Boundaries(ctx)
		if len(bounds) == 0 {
			yield(nil, frameErr)
			return
		}
		level.Debug(d.cfg.logger).Log("msg", "chunks framed", "chunks", len(bounds), "workers", d.cfg.workers)

		ctx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.workers)

		slots := make([]chan chunkResult, len(bounds))
		for i := range slots {
			slots[i] = make(chan chunkResult, 1)
		}

		window := make(chan struct{}, 2*d.cfg.workers)
		dispatched := make(chan struct{})
		go func() {
			defer close(dispatched)
			for i, b := range bounds {
				select {
				case window <- struct{}{}:
				case <-gctx.Done():
					return
				}
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						slots[i] <- chunkResult{err: err}
						return nil
					}
					c, err := d.decodeChunk(b)
					slots[i] <- chunkResult{chunk: c, err: err}

					return nil
				})
			}
		}()
		defer func() {
			cancel()
			<-dispatched
			_ = g.Wait()
		}()

		for i, b := range bounds {
			if d.cfg.stopped(Progress{Chunk: i, Offset: b.Offset}) {
				return
			}

			var res chunkResult
			select {
			case res = <-slots[i]:
				<-window
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}

			if res.err != nil {
				if !yield(nil, res.err) {
					return
				}
				continue
			}
			if !yield(res.chunk, nil) || res.chunk.stopped {
				return
			}
		}

		if frameErr != nil {
			yield(nil, frameErr)
		}
	}
}
