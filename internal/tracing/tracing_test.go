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

package tracing

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideml/stride/pkg/trainer"
)

func TestNewProvider(t *testing.T) {
	var spans bytes.Buffer
	p, err := NewProvider(Config{
		ServiceName:    "stride-test",
		ServiceVersion: "0.0.0",
		SpanWriter:     &spans,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Shutdown(context.Background()))
	}()

	require.NotNil(t, p.Tracer("test"))
	require.NotNil(t, p.Collector())
}

func TestProfiler_OpensAndEndsSpan(t *testing.T) {
	var spans bytes.Buffer
	p, err := NewProvider(Config{ServiceName: "stride-test", SpanWriter: &spans})
	require.NoError(t, err)

	prof := NewProfiler(p.Tracer("test"), "run-1")
	ctx, end := prof.Profile(context.Background(), "run_training_epoch")
	require.NotNil(t, ctx)
	end()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, spans.String(), "run_training_epoch")
}

func TestCollector_RecordsRunAndEpochs(t *testing.T) {
	p, err := NewProvider(Config{ServiceName: "stride-test"})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Shutdown(context.Background()))
	}()

	c := p.Collector()
	c.EpochCompleted(1, 5)
	c.EpochCompleted(2, 10)
	c.RunCompleted(trainer.StopReasonMaxEpochs, 2, 10)

	// The counters are exported through the Prometheus handler.
	rr := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, "stride_epochs_total")
	assert.Contains(t, body, "stride_runs_total")
}
