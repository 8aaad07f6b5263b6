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
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Profiler turns named profiling scopes into OpenTelemetry spans. It
// implements the trainer's Profiler contract: the release function ends the
// span when the profiled block finishes.
type Profiler struct {
	tracer trace.Tracer
	runID  string
}

// NewProfiler creates a profiler that tags every span with the run ID.
func NewProfiler(tracer trace.Tracer, runID string) *Profiler {
	return &Profiler{tracer: tracer, runID: runID}
}

// Profile opens a span for the named scope.
func (p *Profiler) Profile(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run_id", p.runID),
			attribute.String("span.type", "trainer.profile"),
		),
	)
	return ctx, func() { span.End() }
}
