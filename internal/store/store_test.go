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

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideml/stride/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stride.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.RecordStart(ctx, "run-1", started))

	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.True(t, run.StartedAt.Equal(started))
	assert.True(t, run.FinishedAt.IsZero())
	assert.Empty(t, run.StopReason)

	finished := started.Add(10 * time.Minute)
	require.NoError(t, s.RecordFinish(ctx, "run-1", finished, 5, 250, "max_epochs"))

	run, err = s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.FinishedAt.Equal(finished))
	assert.Equal(t, 5, run.Epochs)
	assert.Equal(t, 250, run.Steps)
	assert.Equal(t, "max_epochs", run.StopReason)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)

	var nfe *errors.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "run", nfe.Resource)
}

func TestRecordFinishMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordFinish(context.Background(), "nope", time.Now(), 1, 1, "max_epochs")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordStart(ctx, "run-a", base))
	require.NoError(t, s.RecordStart(ctx, "run-b", base.Add(time.Hour)))
	require.NoError(t, s.RecordStart(ctx, "run-c", base.Add(2*time.Hour)))

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}
