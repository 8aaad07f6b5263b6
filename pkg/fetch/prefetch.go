package fetch

import (
	"context"
	"sync"
)

// prefetchFetcher overlaps batch fetching and device transfer with the
// consumer. A background goroutine reads from the source, applies the
// transform, and buffers up to prefetchBatches results ahead of Next.
type prefetchFetcher struct {
	prefetch  int
	source    Source
	transform Transform

	mu      sync.Mutex
	results chan prefetched
	cancel  context.CancelFunc
	done    chan struct{}
}

type prefetched struct {
	batch Batch
	err   error
}

func newPrefetchFetcher(prefetchBatches int) *prefetchFetcher {
	if prefetchBatches < 1 {
		prefetchBatches = 1
	}
	return &prefetchFetcher{prefetch: prefetchBatches}
}

func (f *prefetchFetcher) Kind() Kind { return KindParallelPrefetch }

// Setup stops any in-flight prefetcher from a previous epoch and binds the
// new source. The worker starts lazily on the first Next call.
func (f *prefetchFetcher) Setup(source Source, transform Transform) {
	f.stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = source
	f.transform = transform
}

func (f *prefetchFetcher) Next(ctx context.Context) (Batch, error) {
	f.mu.Lock()
	if f.source == nil {
		f.mu.Unlock()
		return nil, ErrExhausted
	}
	if f.results == nil {
		f.start()
	}
	results := f.results
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-results:
		if !ok {
			return nil, ErrExhausted
		}
		return r.batch, r.err
	}
}

// start launches the prefetch worker. Caller must hold f.mu.
func (f *prefetchFetcher) start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.results = make(chan prefetched, f.prefetch)
	f.done = make(chan struct{})

	source, transform, results, done := f.source, f.transform, f.results, f.done
	go func() {
		defer close(results)
		defer close(done)
		for {
			b, err := source.Next(ctx)
			if err == ErrExhausted {
				return
			}
			if err == nil && transform != nil {
				b, err = transform(ctx, b)
			}
			select {
			case <-ctx.Done():
				return
			case results <- prefetched{batch: b, err: err}:
			}
			if err != nil {
				return
			}
		}
	}()
}

// stop cancels the worker and waits for it to exit.
func (f *prefetchFetcher) stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.done = nil
	f.results = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		// Drain so the worker is not blocked on a full channel.
		<-done
	}
}

func (f *prefetchFetcher) Teardown() error {
	f.stop()
	f.mu.Lock()
	f.source = nil
	f.transform = nil
	f.mu.Unlock()
	return nil
}
