package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strideml/stride/pkg/errors"
)

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name    string
		limits  Limits
		wantErr bool
		field   string
	}{
		{name: "defaults", limits: Limits{MaxEpochs: 1000, MaxSteps: -1}},
		{name: "unbounded epochs", limits: Limits{MaxEpochs: -1, MaxSteps: -1}},
		{name: "zero max epochs", limits: Limits{MaxEpochs: 0, MaxSteps: -1}},
		{name: "max epochs below -1", limits: Limits{MaxEpochs: -2, MaxSteps: -1}, wantErr: true, field: "max_epochs"},
		{name: "max steps below -1", limits: Limits{MaxEpochs: 1, MaxSteps: -5}, wantErr: true, field: "max_steps"},
		{name: "negative min epochs", limits: Limits{MaxEpochs: 1, MaxSteps: -1, MinEpochs: -1}, wantErr: true, field: "min_epochs"},
		{name: "negative min steps", limits: Limits{MaxEpochs: 1, MaxSteps: -1, MinSteps: -1}, wantErr: true, field: "min_steps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cfgErr *errors.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestResolveStop(t *testing.T) {
	many := 100

	tests := []struct {
		name           string
		limits         Limits
		processed      int
		globalStep     int
		stopRequested  bool
		numBatches     int
		wantDone       bool
		wantReason     StopReason
		wantEarlyStop  bool
		wantSuppressed bool
	}{
		{
			name:       "nothing reached",
			limits:     Limits{MaxEpochs: 10, MaxSteps: -1},
			processed:  3,
			globalStep: 30,
			numBatches: many,
		},
		{
			name:       "max epochs reached",
			limits:     Limits{MaxEpochs: 3, MaxSteps: -1},
			processed:  3,
			globalStep: 30,
			numBatches: many,
			wantDone:   true,
			wantReason: StopReasonMaxEpochs,
		},
		{
			name:       "max steps reached",
			limits:     Limits{MaxEpochs: -1, MaxSteps: 30},
			processed:  3,
			globalStep: 30,
			numBatches: many,
			wantDone:   true,
			wantReason: StopReasonMaxSteps,
		},
		{
			name:       "unbounded limits never trigger",
			limits:     Limits{MaxEpochs: -1, MaxSteps: -1},
			processed:  1_000_000,
			globalStep: 1_000_000,
			numBatches: many,
		},
		{
			name:          "early stop honored with no guards",
			limits:        Limits{MaxEpochs: 10, MaxSteps: -1},
			processed:     1,
			globalStep:    10,
			stopRequested: true,
			numBatches:    many,
			wantDone:      true,
			wantReason:    StopReasonEarlyStop,
			wantEarlyStop: true,
		},
		{
			name:           "early stop suppressed by min epochs",
			limits:         Limits{MaxEpochs: 10, MinEpochs: 3, MaxSteps: -1},
			processed:      1,
			globalStep:     10,
			stopRequested:  true,
			numBatches:     many,
			wantSuppressed: true,
		},
		{
			name:           "early stop suppressed by min steps",
			limits:         Limits{MaxEpochs: 10, MaxSteps: -1, MinSteps: 50},
			processed:      5,
			globalStep:     10,
			stopRequested:  true,
			numBatches:     many,
			wantSuppressed: true,
		},
		{
			name:          "early stop honored once both guards met",
			limits:        Limits{MaxEpochs: 10, MinEpochs: 2, MaxSteps: -1, MinSteps: 20},
			processed:     2,
			globalStep:    20,
			stopRequested: true,
			numBatches:    many,
			wantDone:      true,
			wantReason:    StopReasonEarlyStop,
			wantEarlyStop: true,
		},
		{
			name:       "zero batches",
			limits:     Limits{MaxEpochs: 10, MaxSteps: -1},
			numBatches: 0,
			wantDone:   true,
			wantReason: StopReasonNoData,
		},
		{
			name:       "max epochs zero stops immediately",
			limits:     Limits{MaxEpochs: 0, MaxSteps: -1},
			numBatches: many,
			wantDone:   true,
			wantReason: StopReasonMaxEpochs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := resolveStop(tt.limits, tt.processed, tt.globalStep, tt.stopRequested, tt.numBatches)
			assert.Equal(t, tt.wantDone, d.Done, "Done")
			assert.Equal(t, tt.wantReason, d.Reason, "Reason")
			assert.Equal(t, tt.wantEarlyStop, d.EarlyStop, "EarlyStop")
			assert.Equal(t, tt.wantSuppressed, d.Suppressed, "Suppressed")
		})
	}
}
