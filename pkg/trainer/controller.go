// Package trainer implements the control-flow core of the training runner:
// the outer run loop over epochs, progress tracking with resumability, stop
// condition resolution, and lifecycle hook sequencing. The per-step work is
// delegated to an EpochLoop collaborator; this package only decides whether
// to continue, what phase comes next, and what must be notified.
package trainer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/strideml/stride/pkg/errors"
	"github.com/strideml/stride/pkg/fetch"
	"github.com/strideml/stride/pkg/progress"
)

// State identifies where the controller is in its lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateFinished   State = "finished"
)

// Dependencies are the collaborators a Controller drives. EpochLoop, Data,
// Callbacks, Model, Strategy, Metrics and Capabilities are required;
// Accumulation, Profiler and Observer are optional.
type Dependencies struct {
	EpochLoop    EpochLoop
	Data         DataProvider
	Callbacks    Callbacks
	Model        Model
	Strategy     Strategy
	Metrics      MetricsLogger
	Capabilities Capabilities

	Accumulation AccumulationScheduler
	Profiler     Profiler
	Observer     RunObserver
}

// Controller owns the outer training loop. It exclusively owns the progress
// counter, the run state, and the selected fetcher's lifetime; no other
// component mutates them. A single logical thread of control drives the
// state machine; the only concurrency-safe entry points are RequestStop
// and the limit setters.
type Controller struct {
	logger *slog.Logger

	epochLoop    EpochLoop
	data         DataProvider
	callbacks    Callbacks
	model        Model
	strategy     Strategy
	metrics      MetricsLogger
	caps         Capabilities
	accumulation AccumulationScheduler
	profiler     Profiler
	observer     RunObserver

	maxEpochs int
	minEpochs int

	epochProgress *progress.Progress
	state         State
	freshStart    bool
	restarting    bool
	outputs       []StepOutput
	fetcher       fetch.Fetcher
	stopReason    StopReason

	stopRequested atomic.Bool

	// suppressLog throttles the repeated "training continues" message
	// emitted while an early-stop request is deferred by the minimum
	// duration guards.
	suppressLog *rate.Limiter
}

// New constructs a Controller. Invalid limits fail immediately with a
// configuration error.
func New(limits Limits, deps Dependencies) (*Controller, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if deps.EpochLoop == nil || deps.Data == nil || deps.Callbacks == nil ||
		deps.Model == nil || deps.Strategy == nil || deps.Metrics == nil ||
		deps.Capabilities == nil {
		return nil, errors.New("trainer: missing required collaborator")
	}

	c := &Controller{
		logger:        slog.Default(),
		epochLoop:     deps.EpochLoop,
		data:          deps.Data,
		callbacks:     deps.Callbacks,
		model:         deps.Model,
		strategy:      deps.Strategy,
		metrics:       deps.Metrics,
		caps:          deps.Capabilities,
		accumulation:  deps.Accumulation,
		profiler:      deps.Profiler,
		observer:      deps.Observer,
		maxEpochs:     limits.MaxEpochs,
		minEpochs:     limits.MinEpochs,
		epochProgress: progress.New(),
		state:         StateNotStarted,
		suppressLog:   rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	if c.profiler == nil {
		c.profiler = NopProfiler{}
	}
	c.epochLoop.SetMaxSteps(limits.MaxSteps)
	c.epochLoop.SetMinSteps(limits.MinSteps)
	return c, nil
}

// WithLogger sets a custom logger for the controller.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	c.logger = logger
	return c
}

// Progress returns the epoch progress counter. The returned pointer is
// owned by the controller; callers may read it or serialize it for
// checkpointing but must not mutate it.
func (c *Controller) Progress() *progress.Progress { return c.epochProgress }

// State returns the controller's lifecycle state.
func (c *Controller) State() State { return c.state }

// StopReason returns why the run finished, or StopReasonNone while running.
func (c *Controller) StopReason() StopReason { return c.stopReason }

// GlobalStep returns the inner loop's global step count.
func (c *Controller) GlobalStep() int { return c.epochLoop.GlobalStep() }

// MaxEpochs returns the configured epoch limit.
func (c *Controller) MaxEpochs() int { return c.maxEpochs }

// MinEpochs returns the configured minimum epoch guard.
func (c *Controller) MinEpochs() int { return c.minEpochs }

// MaxSteps returns the step limit held by the inner loop.
func (c *Controller) MaxSteps() int { return c.epochLoop.MaxSteps() }

// SetMaxSteps updates the step limit mid-run. The value is forwarded to the
// inner loop and honored on the next stop check. Setting a value below -1
// is a configuration error.
func (c *Controller) SetMaxSteps(v int) error {
	if v < Unbounded {
		return &errors.ConfigurationError{
			Field:      "max_steps",
			Message:    "must be a non-negative integer or -1",
			Suggestion: "use -1 to run without a step limit",
		}
	}
	c.epochLoop.SetMaxSteps(v)
	return nil
}

// MinSteps returns the minimum step guard held by the inner loop.
func (c *Controller) MinSteps() int { return c.epochLoop.MinSteps() }

// SetMinSteps updates the minimum step guard mid-run.
func (c *Controller) SetMinSteps(v int) { c.epochLoop.SetMinSteps(v) }

// RequestStop raises the external early-stop signal. Safe to call from any
// goroutine. The request is honored on the next stop check once the
// minimum-duration guards are met; until then it is suppressed and may be
// re-raised.
func (c *Controller) RequestStop() { c.stopRequested.Store(true) }

// StopRequested reports the current early-stop signal, including the
// write-back from a suppressed request.
func (c *Controller) StopRequested() bool { return c.stopRequested.Load() }

// SetRestarting marks the controller as resuming from a checkpoint. It
// reconciles the restored progress counts first: work interrupted after
// processing but before the terminal hook is counted as completed, and the
// restart flag is honored only when the counts showed a genuine
// interruption. Must be called before Run, ahead of any stop check.
func (c *Controller) SetRestarting(restarting bool) {
	interrupted := c.epochProgress.ReconcileOnRestart()
	c.restarting = restarting && interrupted
}

// Restarting reports whether the controller will resume rather than start
// clean.
func (c *Controller) Restarting() bool { return c.restarting }

// limits assembles the current limit values, reading the step limits from
// the inner loop which owns them.
func (c *Controller) limits() Limits {
	return Limits{
		MaxEpochs: c.maxEpochs,
		MinEpochs: c.minEpochs,
		MaxSteps:  c.epochLoop.MaxSteps(),
		MinSteps:  c.epochLoop.MinSteps(),
	}
}

// done evaluates the stop conditions and writes the early-stop signal back
// onto run-wide state (false when the request was suppressed).
func (c *Controller) done() bool {
	d := resolveStop(
		c.limits(),
		c.epochProgress.Current.Processed,
		c.epochLoop.GlobalStep(),
		c.stopRequested.Load(),
		c.data.NumBatches(),
	)
	if d.Suppressed && c.suppressLog.Allow() {
		c.logger.Info("stop requested but minimum duration not met; training continues",
			"min_epochs", c.minEpochs,
			"min_steps", c.epochLoop.MinSteps(),
			"processed_epochs", c.epochProgress.Current.Processed,
			"global_step", c.epochLoop.GlobalStep(),
		)
	}
	c.stopRequested.Store(d.EarlyStop)
	if d.Done && c.stopReason == StopReasonNone {
		c.stopReason = d.Reason
	}
	return d.Done
}

// Skip reports whether the whole run should be skipped. The configured
// batch limit is checked before the stop conditions because batch-count
// discovery requires the data sources, which must not be built for a
// zero-batch run.
func (c *Controller) Skip() bool {
	if c.data.BatchLimit() == 0 {
		c.stopReason = StopReasonNoData
		return true
	}
	return c.done()
}

// Run drives the state machine NotStarted -> Running -> Finished. Teardown
// always executes on exit, including after a fatal configuration error.
// Cooperative interrupts exit gracefully at the epoch boundary; they are
// not errors.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		if terr := c.teardown(); terr != nil && err == nil {
			err = terr
		}
	}()

	if c.Skip() {
		c.logger.Info("skipping training run", slog.String("reason", string(c.stopReason)))
		c.state = StateFinished
		return nil
	}

	c.reset()
	if err := c.onRunStart(ctx); err != nil {
		return err
	}

	c.state = StateRunning
	runStart := time.Now()
	for !c.done() {
		if err := c.advanceStart(ctx); err != nil {
			return err
		}
		if err := c.advance(ctx); err != nil {
			return err
		}
		interrupted, err := c.advanceEnd(ctx)
		if err != nil {
			return err
		}
		c.restarting = false
		if interrupted {
			c.stopReason = StopReasonInterrupted
			break
		}
	}

	c.state = StateFinished
	if err := c.onRunEnd(ctx); err != nil {
		return err
	}

	epochs := c.epochProgress.Current.Completed
	steps := c.epochLoop.GlobalStep()
	if c.observer != nil {
		c.observer.RunCompleted(c.stopReason, epochs, steps)
	}
	c.logger.Info("training run finished",
		slog.String("reason", string(c.stopReason)),
		slog.Int("epochs", epochs),
		slog.Int("global_step", steps),
		slog.Int64("duration_ms", time.Since(runStart).Milliseconds()),
	)
	return nil
}

// reset prepares the progress counter for the run. On a genuine restart the
// current counts roll back to the last completed epoch boundary so the
// interrupted epoch is replayed.
func (c *Controller) reset() {
	if c.restarting {
		c.epochProgress.ResetOnRestart()
	}
}

// onRunStart rebuilds the data sources, selects the run's fetcher, and
// invokes the run-start hooks. Hook order is a hard contract: callbacks
// observe before the model mutates shared state, and the strategy runs
// last.
func (c *Controller) onRunStart(ctx context.Context) error {
	if err := c.data.Reload(ctx); err != nil {
		return errors.Wrap(err, "reloading data sources")
	}

	f, err := c.newFetcher()
	if err != nil {
		return err
	}
	c.fetcher = f
	c.logger.Debug("selected fetcher", slog.String("kind", string(f.Kind())))

	c.freshStart = true

	if err := c.metrics.MoveToDevice(ctx); err != nil {
		return errors.Wrap(err, "moving results to device")
	}

	if err := c.callbacks.OnTrainStart(ctx); err != nil {
		return err
	}
	if err := c.model.OnTrainStart(ctx); err != nil {
		return err
	}
	return c.strategy.OnTrainStart(ctx)
}

// advanceStart prepares the data source for the epoch and runs the
// epoch-start hook ladder.
func (c *Controller) advanceStart(ctx context.Context) error {
	if !c.freshStart && c.data.ShouldReload() {
		c.logger.Log(ctx, slog.Level(-8), "resetting train data source")
		if err := c.data.ReloadTrain(ctx); err != nil {
			return errors.Wrap(err, "reloading train data source")
		}
	}
	c.freshStart = false

	// Outputs are cleared here instead of in reset: they are never
	// accumulated across epochs.
	c.outputs = nil

	epoch := c.epochProgress.Current.Processed

	// Re-seed sources backed by a distributed sampler so per-epoch
	// shuffling stays reproducible.
	if seeder, ok := c.data.Train().(EpochSeeder); ok {
		seeder.SetEpoch(epoch)
	}

	if c.accumulation != nil {
		if err := c.accumulation.OnTrainEpochStart(ctx, epoch); err != nil {
			return err
		}
		c.epochLoop.ResetAccumulatedLoss(c.accumulation.AccumulateBatches(epoch))
	}

	c.epochProgress.IncrementReady()

	c.metrics.OnEpochStart(ctx)

	if err := c.callbacks.OnEpochStart(ctx); err != nil {
		return err
	}
	if err := c.model.OnEpochStart(ctx); err != nil {
		return err
	}
	if err := c.callbacks.OnTrainEpochStart(ctx); err != nil {
		return err
	}
	if err := c.model.OnTrainEpochStart(ctx); err != nil {
		return err
	}

	c.epochProgress.IncrementStarted()
	return nil
}

// advance delegates one full epoch to the inner loop, fed by the selected
// fetcher. The profiling scope is named but the controller does not
// interpret timing.
func (c *Controller) advance(ctx context.Context) error {
	c.fetcher.Setup(c.data.Train(), c.strategy.BatchToDevice)

	pctx, end := c.profiler.Profile(ctx, "run_training_epoch")
	defer end()

	outputs, err := c.epochLoop.Run(pctx, c.fetcher)
	if err != nil {
		return err
	}
	c.outputs = outputs
	return nil
}

// advanceEnd finishes the epoch: aggregation hook, progress accounting, the
// epoch-end hook ladder, scheduler updates, the epoch metric flush, and the
// cooperative interrupt check. It reports whether the run should exit
// gracefully.
func (c *Controller) advanceEnd(ctx context.Context) (bool, error) {
	c.metrics.EpochEndReached(ctx)

	if agg, ok := c.model.(EpochEndAggregator); ok && len(c.outputs) > 0 {
		prepared := c.epochLoop.PrepareEpochEndOutputs(c.outputs)
		ret, err := agg.TrainingEpochEnd(ctx, prepared)
		if err != nil {
			return false, err
		}
		if ret != nil {
			return false, &errors.ConfigurationError{
				Field:      "training_epoch_end",
				Message:    "hook must not return a value",
				Suggestion: "remove the return value from the epoch-end aggregation hook",
			}
		}
	}
	// Free the epoch outputs; they are never held across epochs.
	c.outputs = nil

	c.epochProgress.IncrementProcessed()

	if err := c.callbacks.OnTrainEpochEnd(ctx); err != nil {
		return false, err
	}
	if err := c.model.OnTrainEpochEnd(ctx); err != nil {
		return false, err
	}
	if err := c.callbacks.OnEpochEnd(ctx); err != nil {
		return false, err
	}
	if err := c.model.OnEpochEnd(ctx); err != nil {
		return false, err
	}

	c.metrics.OnEpochEnd(ctx)

	// Epoch-granularity schedulers only update after a fully consumed
	// epoch; plateau schedulers need the metrics logged this epoch.
	if c.epochLoop.FullEpochConsumed() {
		if err := c.epochLoop.UpdateEpochSchedulers(ctx); err != nil {
			return false, err
		}
	}

	c.epochProgress.IncrementCompleted()

	// Epoch-end metrics are attributed to the step count as of epoch end:
	// the global step was already advanced past the last batch, so the
	// logging step is one behind it.
	if err := c.metrics.UpdateEpochMetrics(ctx, c.epochLoop.GlobalStep()-1); err != nil {
		return false, err
	}

	if c.observer != nil {
		c.observer.EpochCompleted(c.epochProgress.Current.Completed, c.epochLoop.GlobalStep())
	}

	// Cooperative interrupt: the only cancellation point, so shared state
	// is never left half-updated mid-phase.
	if c.caps.InterruptRequested() || ctx.Err() != nil {
		c.logger.Info("interrupt received, exiting run at epoch boundary",
			slog.Int("epoch", c.epochProgress.Current.Completed))
		return true, nil
	}
	return false, nil
}

// onRunEnd invokes the terminal hooks, in the same fixed order as run
// start.
func (c *Controller) onRunEnd(ctx context.Context) error {
	if err := c.callbacks.OnTrainEnd(ctx); err != nil {
		return err
	}
	if err := c.model.OnTrainEnd(ctx); err != nil {
		return err
	}
	return c.strategy.OnTrainEnd(ctx)
}

// teardown releases the active fetcher and delegates teardown to the inner
// loop. Idempotent; runs on every exit path.
func (c *Controller) teardown() error {
	var ferr error
	if c.fetcher != nil {
		ferr = c.fetcher.Teardown()
		c.fetcher = nil
	}
	if err := c.epochLoop.Teardown(); err != nil {
		return err
	}
	return ferr
}
