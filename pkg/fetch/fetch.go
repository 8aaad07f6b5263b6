// Package fetch provides the batch-fetching strategies used by the training
// run controller. A fetcher pulls batches from a data source and applies a
// device-placement transform; the parallel variant overlaps the two with
// consumption by the inner loop.
package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Batch is an opaque unit of work pulled from a data source. The control
// core never inspects batch contents.
type Batch = any

// ErrExhausted is returned by Source.Next and Fetcher.Next when the data
// source has no more batches for this epoch.
var ErrExhausted = errors.New("fetch: source exhausted")

// Source yields batches for one epoch. Len returns the number of batches,
// or -1 when the source is unbounded (unknown length).
type Source interface {
	Next(ctx context.Context) (Batch, error)
	Len() int
}

// Transform moves a batch to the active compute device (or applies any
// other per-batch preparation) before the inner loop sees it.
type Transform func(ctx context.Context, b Batch) (Batch, error)

// Kind identifies one of the closed set of fetching strategies.
type Kind string

const (
	// KindSingle fetches one batch at a time, synchronously.
	KindSingle Kind = "single"
	// KindParallelPrefetch overlaps batch transfer with compute using a
	// background prefetcher. Requires a GPU-class accelerator.
	KindParallelPrefetch Kind = "parallel_prefetch"
	// KindIterPassthrough hands the raw source to the inner loop instead of
	// pulling batches. Experimental.
	KindIterPassthrough Kind = "iterator_passthrough"
)

// Fetcher is the strategy object owned by the run controller for the
// duration of one run. Setup is called once per epoch with the current data
// source; Teardown must be idempotent.
type Fetcher interface {
	Kind() Kind
	Setup(source Source, transform Transform)
	Next(ctx context.Context) (Batch, error)
	Teardown() error
}

// New constructs a fetcher of the given kind. prefetchBatches controls how
// many batches the parallel fetcher keeps in flight; the other kinds ignore
// it.
func New(kind Kind, prefetchBatches int) (Fetcher, error) {
	switch kind {
	case KindSingle:
		return &singleFetcher{}, nil
	case KindParallelPrefetch:
		return newPrefetchFetcher(prefetchBatches), nil
	case KindIterPassthrough:
		return &passthroughFetcher{}, nil
	default:
		return nil, fmt.Errorf("unknown fetcher kind %q", kind)
	}
}

// PrefetchBatches derives the prefetch depth for a run: 1 when the dataset
// length is unknown or inter-batch parallelism is requested, else 0.
func PrefetchBatches(unboundedData, interBatchParallelism bool) int {
	if unboundedData || interBatchParallelism {
		return 1
	}
	return 0
}

// singleFetcher pulls and transforms one batch per call.
type singleFetcher struct {
	source    Source
	transform Transform
}

func (f *singleFetcher) Kind() Kind { return KindSingle }

func (f *singleFetcher) Setup(source Source, transform Transform) {
	f.source = source
	f.transform = transform
}

func (f *singleFetcher) Next(ctx context.Context) (Batch, error) {
	if f.source == nil {
		return nil, errors.New("fetch: Next called before Setup")
	}
	b, err := f.source.Next(ctx)
	if err != nil {
		return nil, err
	}
	if f.transform != nil {
		return f.transform(ctx, b)
	}
	return b, nil
}

func (f *singleFetcher) Teardown() error {
	f.source = nil
	f.transform = nil
	return nil
}

// passthroughFetcher never pulls batches itself: the inner loop receives the
// raw source and drives iteration. The transform is not applied; the step
// is responsible for device placement in this mode.
type passthroughFetcher struct {
	source Source
}

func (f *passthroughFetcher) Kind() Kind { return KindIterPassthrough }

func (f *passthroughFetcher) Setup(source Source, _ Transform) {
	f.source = source
}

func (f *passthroughFetcher) Next(ctx context.Context) (Batch, error) {
	if f.source == nil {
		return nil, errors.New("fetch: Next called before Setup")
	}
	return f.source, nil
}

func (f *passthroughFetcher) Teardown() error {
	f.source = nil
	return nil
}
