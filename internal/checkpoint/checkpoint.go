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

// Package checkpoint persists training run progress for restart/resume.
// The persisted state is exactly what the control core needs to resume: the
// epoch progress counter and the run limits, serialized whole.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/strideml/stride/pkg/progress"
	"github.com/strideml/stride/pkg/trainer"
)

// Checkpoint is a saved point in a training run.
type Checkpoint struct {
	RunID      string            `json:"run_id"`
	Progress   progress.Progress `json:"progress"`
	MaxEpochs  int               `json:"max_epochs"`
	MinEpochs  int               `json:"min_epochs"`
	MaxSteps   int               `json:"max_steps"`
	MinSteps   int               `json:"min_steps"`
	GlobalStep int               `json:"global_step"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Limits returns the persisted limits as a trainer.Limits value.
func (cp *Checkpoint) Limits() trainer.Limits {
	return trainer.Limits{
		MaxEpochs: cp.MaxEpochs,
		MinEpochs: cp.MinEpochs,
		MaxSteps:  cp.MaxSteps,
		MinSteps:  cp.MinSteps,
	}
}

// Manager handles checkpoint storage and retrieval.
type Manager struct {
	mu      sync.RWMutex
	dir     string
	enabled bool
}

// NewManager creates a checkpoint manager rooted at dir. An empty dir
// disables checkpointing: Save and Load become no-ops.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{dir: dir, enabled: dir != ""}
	if m.enabled {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}
	return m, nil
}

// Enabled returns whether checkpointing is enabled.
func (m *Manager) Enabled() bool { return m.enabled }

// Save writes a checkpoint for a run.
func (m *Manager) Save(ctx context.Context, cp *Checkpoint) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp.CreatedAt = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := m.checkpointPath(cp.RunID)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load reads a run's checkpoint. Returns (nil, nil) when none exists.
func (m *Manager) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	if !m.enabled {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(m.checkpointPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a run's checkpoint.
func (m *Manager) Delete(ctx context.Context, runID string) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.checkpointPath(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// ListInterrupted returns run IDs with saved checkpoints (runs that may
// need to be resumed).
func (m *Manager) ListInterrupted(ctx context.Context) ([]string, error) {
	if !m.enabled {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var runIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), ".json"); ok {
			runIDs = append(runIDs, name)
		}
	}
	return runIDs, nil
}

func (m *Manager) checkpointPath(runID string) string {
	return filepath.Join(m.dir, runID+".json")
}
