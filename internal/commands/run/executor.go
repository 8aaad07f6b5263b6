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
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/strideml/stride/internal/checkpoint"
	"github.com/strideml/stride/internal/commands/shared"
	"github.com/strideml/stride/internal/config"
	"github.com/strideml/stride/internal/log"
	"github.com/strideml/stride/internal/store"
	"github.com/strideml/stride/internal/tracing"
	"github.com/strideml/stride/pkg/earlystop"
	striderrors "github.com/strideml/stride/pkg/errors"
	"github.com/strideml/stride/pkg/trainer"
)

// executorOptions carry everything execute needs beyond the config.
type executorOptions struct {
	cfg        *config.Config
	configPath string

	// resume is the run ID of an interrupted run to pick up, or empty for a
	// fresh run.
	resume string

	// watch applies step-limit overrides from config file changes mid-run.
	watch bool
}

// execute wires the collaborators together and drives one training run.
func execute(ctx context.Context, opts executorOptions) error {
	cfg := opts.cfg

	runID := opts.resume
	if runID == "" {
		runID = uuid.NewString()
	}

	logger := log.WithRunContext(newLogger(cfg), runID)

	v, _, _ := shared.GetVersion()
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:    "stride",
		ServiceVersion: v,
		SpanWriter:     spanWriter(cfg),
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", log.Error(err))
		}
	}()

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, provider.MetricsHandler(), logger)
		defer stop()
	}

	// Early-stop monitor, attached to the metrics recorder below so it sees
	// every epoch-end flush.
	var monitor *earlystop.Monitor
	stopper := &deferredStopper{}
	if cfg.EarlyStop.When != "" {
		monitor, err = earlystop.NewMonitor(cfg.EarlyStop.When, stopper, logger)
		if err != nil {
			return err
		}
	}

	metrics := newMetricsRecorder(logger, monitor)
	loop := &syntheticLoop{logger: log.WithComponent(logger, "loop")}
	data := &syntheticData{
		batchesPerEpoch: cfg.Data.BatchesPerEpoch,
		reloadEvery:     cfg.Data.ReloadEveryEpochs,
	}
	caps := &runCapabilities{
		accelerator: cfg.Accelerator(),
		parallel:    cfg.Run.InterBatchParallelism,
	}

	ctrl, err := trainer.New(cfg.Limits(), trainer.Dependencies{
		EpochLoop:    loop,
		Data:         data,
		Callbacks:    &loggingCallbacks{logger: log.WithComponent(logger, "callbacks")},
		Model:        &syntheticModel{metrics: metrics},
		Strategy:     identityStrategy{},
		Metrics:      metrics,
		Capabilities: caps,
		Profiler:     tracing.NewProfiler(provider.Tracer("stride/trainer"), runID),
		Observer:     provider.Collector(),
	})
	if err != nil {
		return err
	}
	ctrl.WithLogger(logger)
	stopper.ctrl = ctrl

	// Resume from checkpoint when asked to.
	manager, err := checkpoint.NewManager(cfg.Checkpoint.Dir)
	if err != nil {
		return err
	}
	if opts.resume != "" {
		cp, err := manager.Load(ctx, opts.resume)
		if err != nil {
			return err
		}
		if cp == nil {
			logger.Warn("no checkpoint found, starting fresh")
		} else {
			*ctrl.Progress() = cp.Progress
			loop.globalStep = cp.GlobalStep
			ctrl.SetRestarting(true)
			logger.Info("resuming from checkpoint",
				slog.Int(log.EpochKey, cp.Progress.Current.Completed),
				slog.Int(log.StepKey, cp.GlobalStep))
		}
	}

	if opts.watch && opts.configPath != "" {
		watcher, err := config.NewWatcher(opts.configPath, ctrl, logger)
		if err != nil {
			return err
		}
		watcher.Start(ctx)
		defer func() {
			if err := watcher.Stop(); err != nil {
				logger.Warn("config watcher stop failed", log.Error(err))
			}
		}()
	}

	// SIGINT/SIGTERM raise the cooperative interrupt; the run exits at the
	// next epoch boundary.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.Info("interrupt signal received, finishing current epoch",
			slog.String("signal", sig.String()))
		caps.interrupted.Store(true)
	}()

	var hist *store.Store
	if cfg.Store.Path != "" {
		hist, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer hist.Close()
		if opts.resume == "" {
			if err := hist.RecordStart(ctx, runID, time.Now()); err != nil {
				return err
			}
		}
	}

	runErr := ctrl.Run(ctx)

	if err := finishRun(ctx, ctrl, manager, hist, runID, logger); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// finishRun persists the run outcome: an interrupted run keeps a checkpoint
// for resumption, a finished one has its checkpoint removed; the history
// store records the final counts either way.
func finishRun(ctx context.Context, ctrl *trainer.Controller, manager *checkpoint.Manager, hist *store.Store, runID string, logger *slog.Logger) error {
	limits := trainer.Limits{
		MaxEpochs: ctrl.MaxEpochs(),
		MinEpochs: ctrl.MinEpochs(),
		MaxSteps:  ctrl.MaxSteps(),
		MinSteps:  ctrl.MinSteps(),
	}

	if ctrl.StopReason() == trainer.StopReasonInterrupted {
		cp := &checkpoint.Checkpoint{
			RunID:      runID,
			Progress:   *ctrl.Progress(),
			MaxEpochs:  limits.MaxEpochs,
			MinEpochs:  limits.MinEpochs,
			MaxSteps:   limits.MaxSteps,
			MinSteps:   limits.MinSteps,
			GlobalStep: ctrl.GlobalStep(),
		}
		if err := manager.Save(ctx, cp); err != nil {
			return err
		}
		if manager.Enabled() {
			logger.Info("checkpoint saved, resume with --resume",
				slog.String(log.RunIDKey, runID))
		}
	} else if err := manager.Delete(ctx, runID); err != nil {
		return err
	}

	if hist != nil {
		err := hist.RecordFinish(ctx, runID, time.Now(),
			ctrl.Progress().Current.Completed, ctrl.GlobalStep(), string(ctrl.StopReason()))
		// A resumed run whose start predates the store is not an error.
		if err != nil && !striderrors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// deferredStopper forwards early-stop requests to the controller once it
// exists; the monitor is constructed first because the metrics recorder
// needs it.
type deferredStopper struct {
	ctrl *trainer.Controller
}

func (s *deferredStopper) RequestStop() {
	if s.ctrl != nil {
		s.ctrl.RequestStop()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	lc := log.FromEnv()
	if os.Getenv("LOG_LEVEL") == "" && os.Getenv("STRIDE_LOG_LEVEL") == "" && os.Getenv("STRIDE_DEBUG") == "" {
		lc.Level = cfg.Log.Level
	}
	if os.Getenv("LOG_FORMAT") == "" {
		lc.Format = log.Format(cfg.Log.Format)
	}
	lc.AddSource = lc.AddSource || cfg.Log.AddSource
	return log.New(lc)
}

func spanWriter(cfg *config.Config) io.Writer {
	if cfg.Metrics.TraceStdout {
		return os.Stdout
	}
	return nil
}

// serveMetrics exposes the Prometheus handler and returns a shutdown func.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server failed", log.Error(err))
		}
	}()
	logger.Info("metrics server listening", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", log.Error(err))
		}
	}
}
