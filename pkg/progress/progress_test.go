package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementOrdering(t *testing.T) {
	p := New()

	for epoch := 0; epoch < 3; epoch++ {
		p.IncrementReady()
		assert.True(t, p.Current.Ordered())

		p.IncrementStarted()
		assert.True(t, p.Current.Ordered())

		p.IncrementProcessed()
		assert.True(t, p.Current.Ordered())

		p.IncrementCompleted()
		assert.True(t, p.Current.Ordered())
		assert.True(t, p.Total.Ordered())
	}

	assert.Equal(t, Counter{Ready: 3, Started: 3, Processed: 3, Completed: 3}, p.Current)
	assert.Equal(t, Counter{Ready: 3, Started: 3, Processed: 3, Completed: 3}, p.Total)
}

func TestReconcileOnRestart_InterruptedBeforeTerminalHook(t *testing.T) {
	// Interrupted after processing epoch N but before the terminal hook:
	// completed lags processed by one.
	p := &Progress{
		Total:   Counter{Ready: 2, Started: 2, Processed: 2, Completed: 1},
		Current: Counter{Ready: 2, Started: 2, Processed: 2, Completed: 1},
	}

	interrupted := p.ReconcileOnRestart()

	assert.True(t, interrupted)
	assert.Equal(t, 2, p.Current.Completed)
	assert.Equal(t, 2, p.Total.Completed)
	assert.True(t, p.Current.Ordered())
}

func TestReconcileOnRestart_CleanFinish(t *testing.T) {
	p := &Progress{
		Total:   Counter{Ready: 5, Started: 5, Processed: 5, Completed: 5},
		Current: Counter{Ready: 5, Started: 5, Processed: 5, Completed: 5},
	}

	interrupted := p.ReconcileOnRestart()

	assert.False(t, interrupted)
	assert.Equal(t, 5, p.Current.Completed)
}

func TestReconcileOnRestart_InterruptedMidEpoch(t *testing.T) {
	// Interrupted after the epoch became ready but before it was processed.
	p := &Progress{
		Current: Counter{Ready: 3, Started: 3, Processed: 2, Completed: 2},
	}

	interrupted := p.ReconcileOnRestart()

	assert.True(t, interrupted)
	// Nothing new was processed, so completed stays put.
	assert.Equal(t, 2, p.Current.Completed)
}

func TestResetOnRestart(t *testing.T) {
	p := &Progress{
		Current: Counter{Ready: 3, Started: 3, Processed: 2, Completed: 2},
	}

	p.ResetOnRestart()

	assert.Equal(t, Counter{Ready: 2, Started: 2, Processed: 2, Completed: 2}, p.Current)
}

func TestReset(t *testing.T) {
	p := &Progress{
		Total:   Counter{Ready: 4, Started: 4, Processed: 4, Completed: 4},
		Current: Counter{Ready: 4, Started: 4, Processed: 4, Completed: 4},
	}

	p.Reset()

	assert.Equal(t, Counter{}, p.Current)
	assert.Equal(t, 4, p.Total.Completed)
}
