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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLimiter struct {
	mu       sync.Mutex
	maxSteps []int
	minSteps []int
}

func (r *recordingLimiter) SetMaxSteps(v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxSteps = append(r.maxSteps, v)
	return nil
}

func (r *recordingLimiter) SetMinSteps(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minSteps = append(r.minSteps, v)
}

func (r *recordingLimiter) lastMaxSteps() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.maxSteps) == 0 {
		return 0, false
	}
	return r.maxSteps[len(r.maxSteps)-1], true
}

func TestWatcherAppliesStepLimitOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stride.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  max_steps: 100\n"), 0600))

	limiter := &recordingLimiter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := NewWatcher(path, limiter, logger)
	require.NoError(t, err)
	w.Start(context.Background())
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte("run:\n  max_steps: 200\n  min_steps: 10\n"), 0600))

	require.Eventually(t, func() bool {
		v, ok := limiter.lastMaxSteps()
		return ok && v == 200
	}, 5*time.Second, 10*time.Millisecond)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Equal(t, 10, limiter.minSteps[len(limiter.minSteps)-1])
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stride.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  max_steps: 100\n"), 0600))

	limiter := &recordingLimiter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := NewWatcher(path, limiter, logger)
	require.NoError(t, err)
	w.Start(context.Background())
	defer func() { require.NoError(t, w.Stop()) }()

	// An invalid config must not reach the limiter.
	require.NoError(t, os.WriteFile(path, []byte("run:\n  max_steps: -5\n"), 0600))

	// Overwrite with a valid one; only the valid values arrive.
	require.NoError(t, os.WriteFile(path, []byte("run:\n  max_steps: 300\n"), 0600))

	require.Eventually(t, func() bool {
		v, ok := limiter.lastMaxSteps()
		return ok && v == 300
	}, 5*time.Second, 10*time.Millisecond)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.maxSteps, -5)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stride.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  max_steps: 100\n"), 0600))

	limiter := &recordingLimiter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := NewWatcher(path, limiter, logger)
	require.NoError(t, err)
	w.Start(context.Background())
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("run:\n  max_steps: 999\n"), 0600))

	time.Sleep(100 * time.Millisecond)

	_, ok := limiter.lastMaxSteps()
	assert.False(t, ok)
}
