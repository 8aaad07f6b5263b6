package trainer

import (
	"github.com/strideml/stride/pkg/errors"
	"github.com/strideml/stride/pkg/fetch"
)

// selectFetcherKind resolves which fetching strategy the run uses.
// Evaluated exactly once at run start; the policy, in priority order:
//
//  1. A model whose step consumes the raw iterator gets the passthrough
//     fetcher (experimental).
//  2. A run requesting inter-batch parallelism gets the parallel-prefetch
//     fetcher, which assumes a GPU-class device able to overlap transfer
//     and compute.
//  3. Everything else gets the default single-batch fetcher.
func (c *Controller) selectFetcherKind() (fetch.Kind, error) {
	if raw, ok := c.model.(RawIteratorModel); ok && raw.WantsRawIterator() {
		c.logger.Warn("model step consumes the raw batch iterator; " +
			"this mode is experimental and its behavior is subject to change")
		return fetch.KindIterPassthrough, nil
	}
	if c.caps.InterBatchParallelism() {
		if c.caps.Accelerator() != AcceleratorGPU {
			return "", &errors.ConfigurationError{
				Field:      "inter_batch_parallelism",
				Message:    "inter-batch parallelism is available only on GPU accelerators",
				Suggestion: "disable inter_batch_parallelism or run on a GPU",
			}
		}
		return fetch.KindParallelPrefetch, nil
	}
	return fetch.KindSingle, nil
}

// newFetcher constructs the run's fetcher with the derived prefetch depth.
func (c *Controller) newFetcher() (fetch.Fetcher, error) {
	kind, err := c.selectFetcherKind()
	if err != nil {
		return nil, err
	}
	unbounded := c.data.NumBatches() == UnboundedBatches
	prefetch := fetch.PrefetchBatches(unbounded, c.caps.InterBatchParallelism())
	return fetch.New(kind, prefetch)
}
