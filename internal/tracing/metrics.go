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
	"go.opentelemetry.io/otel/metric"

	"github.com/strideml/stride/pkg/trainer"
)

// Collector exports run-level counters through the configured meter
// provider. It implements the trainer's RunObserver contract.
type Collector struct {
	epochsTotal metric.Int64Counter
	stepsTotal  metric.Int64Counter
	runsTotal   metric.Int64Counter

	lastStep int
}

// NewCollector creates a collector using the given meter provider.
func NewCollector(meterProvider metric.MeterProvider) (*Collector, error) {
	meter := meterProvider.Meter("stride")

	c := &Collector{}
	var err error

	c.epochsTotal, err = meter.Int64Counter(
		"stride_epochs_total",
		metric.WithDescription("Total number of training epochs completed"),
		metric.WithUnit("{epoch}"),
	)
	if err != nil {
		return nil, err
	}

	c.stepsTotal, err = meter.Int64Counter(
		"stride_steps_total",
		metric.WithDescription("Total number of optimizer steps taken"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	c.runsTotal, err = meter.Int64Counter(
		"stride_runs_total",
		metric.WithDescription("Total number of training runs finished, by stop reason"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// EpochCompleted records one completed epoch and the steps it contributed.
func (c *Collector) EpochCompleted(epoch, globalStep int) {
	ctx := context.Background()
	c.epochsTotal.Add(ctx, 1)
	if delta := globalStep - c.lastStep; delta > 0 {
		c.stepsTotal.Add(ctx, int64(delta))
	}
	c.lastStep = globalStep
}

// RunCompleted records a finished run labeled by its stop reason.
func (c *Collector) RunCompleted(reason trainer.StopReason, epochs, globalStep int) {
	c.runsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", string(reason))))
}
