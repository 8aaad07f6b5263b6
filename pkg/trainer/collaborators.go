package trainer

import (
	"context"

	"github.com/strideml/stride/pkg/fetch"
)

// StepOutput is one per-step result record produced by the epoch loop.
// The controller never inspects its contents; it only holds the sequence
// between epoch end and the epoch-end aggregation hook.
type StepOutput map[string]any

// EpochLoop is the inner-loop collaborator that performs the actual work of
// one epoch. The controller treats Run as synchronous and blocking; any
// internal overlap of I/O and compute is the loop's own business.
//
// The loop owns the step-granularity limits and counters; the controller
// reads and forwards to them through this minimal surface instead of
// reaching into loop internals.
type EpochLoop interface {
	// Run executes one full epoch, pulling batches through the fetcher,
	// and returns the ordered (possibly empty) per-step outputs.
	Run(ctx context.Context, f fetch.Fetcher) ([]StepOutput, error)

	// Teardown releases any resources held by the loop. Idempotent.
	Teardown() error

	// GlobalStep returns the number of optimizer steps taken across epochs.
	GlobalStep() int

	MinSteps() int
	SetMinSteps(v int)
	MaxSteps() int
	SetMaxSteps(v int)

	// ResetAccumulatedLoss resets the per-epoch running loss accumulator
	// with the given window length.
	ResetAccumulatedLoss(window int)

	// FullEpochConsumed reports whether the last epoch consumed its full
	// planned batch count (rather than stopping early on a step limit).
	FullEpochConsumed() bool

	// UpdateEpochSchedulers updates schedulers keyed on epoch granularity,
	// including plateau-style schedulers that read metrics already logged
	// this epoch. Called only after a fully consumed epoch.
	UpdateEpochSchedulers(ctx context.Context) error

	// PrepareEpochEndOutputs reshapes the raw per-step outputs into the
	// form the model's epoch-end aggregation hook expects.
	PrepareEpochEndOutputs(outputs []StepOutput) []StepOutput
}

// DataProvider owns the upstream training data source.
type DataProvider interface {
	// Reload reconstructs the data sources at run start.
	Reload(ctx context.Context) error

	// ReloadTrain rebuilds the training source mid-run. Called at epoch
	// start when ShouldReload reports true (never for the fresh-start
	// epoch, which Reload already covered).
	ReloadTrain(ctx context.Context) error

	// ShouldReload reports whether the train source must be rebuilt before
	// the next epoch.
	ShouldReload() bool

	// Train returns the current training source, or nil before Reload.
	Train() fetch.Source

	// NumBatches returns the number of training batches per epoch, or
	// UnboundedBatches when the length is unknown, including before Reload
	// has built the sources.
	NumBatches() int

	// BatchLimit returns the configured training batch limit. Unlike
	// NumBatches it must be answerable before Reload, because the run is
	// skipped outright when the limit is zero.
	BatchLimit() int
}

// UnboundedBatches is the NumBatches value for sources of unknown length.
const UnboundedBatches = -1

// EpochSeeder is an optional capability of a training source: sources backed
// by a distributed sampler implement it so shuffling can be re-seeded each
// epoch for reproducibility.
type EpochSeeder interface {
	SetEpoch(epoch int)
}

// Callbacks is the callback-set hook collaborator. Within every phase the
// callback hooks run before the model hooks, so callbacks observe state
// before the model mutates it.
type Callbacks interface {
	OnTrainStart(ctx context.Context) error
	OnEpochStart(ctx context.Context) error
	OnTrainEpochStart(ctx context.Context) error
	OnTrainEpochEnd(ctx context.Context) error
	OnEpochEnd(ctx context.Context) error
	OnTrainEnd(ctx context.Context) error
}

// Model is the model hook collaborator.
type Model interface {
	OnTrainStart(ctx context.Context) error
	OnEpochStart(ctx context.Context) error
	OnTrainEpochStart(ctx context.Context) error
	OnTrainEpochEnd(ctx context.Context) error
	OnEpochEnd(ctx context.Context) error
	OnTrainEnd(ctx context.Context) error
}

// EpochEndAggregator is an optional Model capability: models that aggregate
// per-step outputs at epoch end implement it. The hook must return nil; a
// non-nil result is a fatal configuration error.
type EpochEndAggregator interface {
	TrainingEpochEnd(ctx context.Context, outputs []StepOutput) (any, error)
}

// RawIteratorModel is an optional Model capability: models whose per-step
// entry point consumes the raw batch iterator directly implement it. The
// query is resolved once at run start when selecting the fetcher.
type RawIteratorModel interface {
	WantsRawIterator() bool
}

// Strategy is the execution-strategy hook collaborator. It also supplies
// the batch-to-device transform handed to the fetcher.
type Strategy interface {
	OnTrainStart(ctx context.Context) error
	OnTrainEnd(ctx context.Context) error
	BatchToDevice(ctx context.Context, b fetch.Batch) (fetch.Batch, error)
}

// MetricsLogger is the logging collaborator notified around epoch
// boundaries. UpdateEpochMetrics flushes epoch-level metrics attributed to
// the given global step.
type MetricsLogger interface {
	// MoveToDevice moves accumulated results to the active compute device
	// at run start.
	MoveToDevice(ctx context.Context) error

	OnEpochStart(ctx context.Context)

	// EpochEndReached tells the logger the epoch's steps are over.
	EpochEndReached(ctx context.Context)

	OnEpochEnd(ctx context.Context)

	// UpdateEpochMetrics flushes epoch-end metrics. The step argument is
	// the global step count as of epoch end, which is what loggers expect
	// epoch metrics to be attributed to.
	UpdateEpochMetrics(ctx context.Context, step int) error
}

// AccumulationScheduler is notified at epoch start and supplies the
// gradient-accumulation factor for the epoch, which also sizes the running
// loss accumulator window.
type AccumulationScheduler interface {
	OnTrainEpochStart(ctx context.Context, epoch int) error
	AccumulateBatches(epoch int) int
}

// AcceleratorKind identifies the class of compute device a run executes on.
type AcceleratorKind string

const (
	AcceleratorCPU AcceleratorKind = "cpu"
	AcceleratorGPU AcceleratorKind = "gpu"
	AcceleratorTPU AcceleratorKind = "tpu"
)

// Capabilities answers run-time environment queries. Resolved values are
// cached by the controller where the contract says they are evaluated once.
type Capabilities interface {
	// Accelerator returns the kind of the active compute device.
	Accelerator() AcceleratorKind

	// InterBatchParallelism reports whether the run configuration requests
	// overlapping batch transfer with compute.
	InterBatchParallelism() bool

	// InterruptRequested reports whether an external interrupt signal has
	// been raised. Checked only at the epoch-boundary safe point.
	InterruptRequested() bool
}

// Profiler acquires named profiling scopes. The returned release function
// must be called when the profiled block ends.
type Profiler interface {
	Profile(ctx context.Context, name string) (context.Context, func())
}

// NopProfiler is a Profiler that measures nothing.
type NopProfiler struct{}

// Profile returns ctx unchanged and a no-op release.
func (NopProfiler) Profile(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

// RunObserver receives run-level observations for metrics export. Optional.
type RunObserver interface {
	EpochCompleted(epoch, globalStep int)
	RunCompleted(reason StopReason, epochs, globalStep int)
}
