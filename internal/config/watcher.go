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

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// StepLimiter applies mid-run step-limit overrides. The epoch limits are
// fixed for the lifetime of a run; only the step bounds may be adjusted
// while a run is in flight.
type StepLimiter interface {
	SetMaxSteps(int) error
	SetMinSteps(int)
}

// Watcher watches a config file and applies step-limit overrides when the
// file changes. Other config fields are ignored until the next run.
type Watcher struct {
	path    string
	limiter StepLimiter
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the config file at path. Overrides are
// applied to limiter as the file changes.
func NewWatcher(path string, limiter StepLimiter, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Watch the directory rather than the file so that editors that
	// replace the file (rename-over) keep the watch alive.
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch path: %w", err)
	}

	return &Watcher{
		path:    absPath,
		limiter: limiter,
		watcher: fsw,
		logger:  logger.With(slog.String("component", "configwatcher"), slog.String("path", absPath)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for config changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.eventLoop(ctx)
	w.logger.Info("config watcher started")
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Warn("config watcher event channel closed")
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Warn("config watcher error channel closed")
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.path {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("ignoring config change", "error", err)
		return
	}

	if err := w.limiter.SetMaxSteps(cfg.Run.MaxSteps); err != nil {
		w.logger.Warn("rejected max_steps override", "error", err)
	} else {
		w.logger.Info("applied step limit overrides",
			slog.Int("max_steps", cfg.Run.MaxSteps),
			slog.Int("min_steps", cfg.Run.MinSteps))
		w.limiter.SetMinSteps(cfg.Run.MinSteps)
	}
}
