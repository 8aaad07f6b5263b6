// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package run

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/strideml/stride/internal/log"
	"github.com/strideml/stride/pkg/earlystop"
	"github.com/strideml/stride/pkg/fetch"
	"github.com/strideml/stride/pkg/trainer"
)

// syntheticSource yields a fixed number of pseudo-random batches per epoch.
// It is re-seeded per epoch so shuffling is reproducible across resumes.
type syntheticSource struct {
	total int
	next  int
	rng   *rand.Rand
}

func newSyntheticSource(total int) *syntheticSource {
	return &syntheticSource{total: total, rng: rand.New(rand.NewSource(0))}
}

func (s *syntheticSource) Next(ctx context.Context) (fetch.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= s.total {
		return nil, fetch.ErrExhausted
	}
	s.next++

	batch := make([]float64, 8)
	for i := range batch {
		batch[i] = s.rng.Float64()
	}
	return batch, nil
}

func (s *syntheticSource) Len() int { return s.total }

// SetEpoch re-seeds the source and rewinds it for the epoch.
func (s *syntheticSource) SetEpoch(epoch int) {
	s.rng = rand.New(rand.NewSource(int64(epoch)))
	s.next = 0
}

// syntheticData provides the synthetic training source.
type syntheticData struct {
	batchesPerEpoch int
	reloadEvery     int

	source          *syntheticSource
	epochsSinceLoad int
}

func (d *syntheticData) Reload(ctx context.Context) error {
	d.source = newSyntheticSource(d.batchesPerEpoch)
	d.epochsSinceLoad = 0
	return nil
}

func (d *syntheticData) ReloadTrain(ctx context.Context) error {
	return d.Reload(ctx)
}

// ShouldReload is consulted once per epoch boundary, which is what drives
// the reload interval counter.
func (d *syntheticData) ShouldReload() bool {
	if d.reloadEvery <= 0 {
		return false
	}
	d.epochsSinceLoad++
	return d.epochsSinceLoad >= d.reloadEvery
}

func (d *syntheticData) Train() fetch.Source {
	if d.source == nil {
		return nil
	}
	return d.source
}

func (d *syntheticData) NumBatches() int { return d.batchesPerEpoch }
func (d *syntheticData) BatchLimit() int { return d.batchesPerEpoch }

// syntheticLoop is the inner epoch loop: it consumes batches and produces a
// loss that decays with the global step, so early-stop conditions over
// "loss" have something to converge on.
type syntheticLoop struct {
	logger *slog.Logger

	globalStep int
	minSteps   int
	maxSteps   int
	lossWindow int
	fullEpoch  bool
}

func (l *syntheticLoop) Run(ctx context.Context, f fetch.Fetcher) ([]trainer.StepOutput, error) {
	var outputs []trainer.StepOutput
	l.fullEpoch = false

	for {
		if l.maxSteps != trainer.Unbounded && l.globalStep >= l.maxSteps {
			return outputs, nil
		}

		b, err := f.Next(ctx)
		if err == fetch.ErrExhausted {
			l.fullEpoch = true
			return outputs, nil
		}
		if err != nil {
			return nil, err
		}

		// In passthrough mode the "batch" is the raw source; drain it here.
		if src, ok := b.(fetch.Source); ok {
			for {
				if l.maxSteps != trainer.Unbounded && l.globalStep >= l.maxSteps {
					return outputs, nil
				}
				if _, err := src.Next(ctx); err != nil {
					if err == fetch.ErrExhausted {
						l.fullEpoch = true
						return outputs, nil
					}
					return nil, err
				}
				outputs = append(outputs, l.step())
			}
		}

		outputs = append(outputs, l.step())
	}
}

func (l *syntheticLoop) step() trainer.StepOutput {
	l.globalStep++
	loss := 1.0 / math.Sqrt(float64(l.globalStep))
	return trainer.StepOutput{"loss": loss}
}

func (l *syntheticLoop) Teardown() error { return nil }

func (l *syntheticLoop) GlobalStep() int   { return l.globalStep }
func (l *syntheticLoop) MinSteps() int     { return l.minSteps }
func (l *syntheticLoop) SetMinSteps(v int) { l.minSteps = v }
func (l *syntheticLoop) MaxSteps() int     { return l.maxSteps }
func (l *syntheticLoop) SetMaxSteps(v int) { l.maxSteps = v }

func (l *syntheticLoop) ResetAccumulatedLoss(window int) { l.lossWindow = window }

func (l *syntheticLoop) FullEpochConsumed() bool { return l.fullEpoch }

func (l *syntheticLoop) UpdateEpochSchedulers(ctx context.Context) error {
	l.logger.Log(ctx, log.LevelTrace, "updating epoch schedulers",
		slog.Int(log.StepKey, l.globalStep))
	return nil
}

func (l *syntheticLoop) PrepareEpochEndOutputs(outputs []trainer.StepOutput) []trainer.StepOutput {
	return outputs
}

// syntheticModel aggregates per-step losses into an epoch-mean metric.
type syntheticModel struct {
	metrics *metricsRecorder
}

func (m *syntheticModel) OnTrainStart(ctx context.Context) error      { return nil }
func (m *syntheticModel) OnEpochStart(ctx context.Context) error      { return nil }
func (m *syntheticModel) OnTrainEpochStart(ctx context.Context) error { return nil }
func (m *syntheticModel) OnTrainEpochEnd(ctx context.Context) error   { return nil }
func (m *syntheticModel) OnEpochEnd(ctx context.Context) error        { return nil }
func (m *syntheticModel) OnTrainEnd(ctx context.Context) error        { return nil }

func (m *syntheticModel) TrainingEpochEnd(ctx context.Context, outputs []trainer.StepOutput) (any, error) {
	var sum float64
	var n int
	for _, out := range outputs {
		if loss, ok := out["loss"].(float64); ok {
			sum += loss
			n++
		}
	}
	if n > 0 {
		m.metrics.Record("loss", sum/float64(n))
	}
	return nil, nil
}

// loggingCallbacks traces epoch boundaries.
type loggingCallbacks struct {
	logger *slog.Logger
}

func (c *loggingCallbacks) OnTrainStart(ctx context.Context) error {
	c.logger.Debug("training started")
	return nil
}

func (c *loggingCallbacks) OnEpochStart(ctx context.Context) error      { return nil }
func (c *loggingCallbacks) OnTrainEpochStart(ctx context.Context) error { return nil }
func (c *loggingCallbacks) OnTrainEpochEnd(ctx context.Context) error   { return nil }
func (c *loggingCallbacks) OnEpochEnd(ctx context.Context) error        { return nil }

func (c *loggingCallbacks) OnTrainEnd(ctx context.Context) error {
	c.logger.Debug("training ended")
	return nil
}

// identityStrategy runs on the host device; batches pass through unchanged.
type identityStrategy struct{}

func (identityStrategy) OnTrainStart(ctx context.Context) error { return nil }
func (identityStrategy) OnTrainEnd(ctx context.Context) error   { return nil }
func (identityStrategy) BatchToDevice(ctx context.Context, b fetch.Batch) (fetch.Batch, error) {
	return b, nil
}

// metricsRecorder collects epoch-end metrics, flushes them to the log, and
// feeds the early-stop monitor.
type metricsRecorder struct {
	logger  *slog.Logger
	monitor *earlystop.Monitor

	mu      sync.Mutex
	metrics map[string]any
}

func newMetricsRecorder(logger *slog.Logger, monitor *earlystop.Monitor) *metricsRecorder {
	return &metricsRecorder{
		logger:  logger,
		monitor: monitor,
		metrics: make(map[string]any),
	}
}

// Record stores an epoch-end metric value.
func (r *metricsRecorder) Record(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[name] = value
}

func (r *metricsRecorder) snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.metrics))
	for k, v := range r.metrics {
		out[k] = v
	}
	return out
}

func (r *metricsRecorder) MoveToDevice(ctx context.Context) error { return nil }

func (r *metricsRecorder) OnEpochStart(ctx context.Context)    {}
func (r *metricsRecorder) EpochEndReached(ctx context.Context) {}
func (r *metricsRecorder) OnEpochEnd(ctx context.Context)      {}

func (r *metricsRecorder) UpdateEpochMetrics(ctx context.Context, step int) error {
	metrics := r.snapshot()
	if len(metrics) == 0 {
		return nil
	}

	attrs := []any{slog.Int(log.StepKey, step)}
	for name, value := range metrics {
		attrs = append(attrs, slog.Any(name, value))
	}
	r.logger.Info("epoch metrics", attrs...)

	if r.monitor != nil {
		if _, err := r.monitor.Observe(metrics); err != nil {
			r.logger.Warn("early-stop evaluation failed", log.Error(err))
		}
	}
	return nil
}

// runCapabilities answers fixed environment queries for the run; the
// interrupt flag is raised by the signal handler.
type runCapabilities struct {
	accelerator trainer.AcceleratorKind
	parallel    bool
	interrupted atomic.Bool
}

func (c *runCapabilities) Accelerator() trainer.AcceleratorKind { return c.accelerator }
func (c *runCapabilities) InterBatchParallelism() bool          { return c.parallel }
func (c *runCapabilities) InterruptRequested() bool             { return c.interrupted.Load() }
