package trainer

// StopReason records why a run finished.
type StopReason string

const (
	// StopReasonNone means no stop condition has been met.
	StopReasonNone StopReason = ""
	// StopReasonMaxEpochs means the epoch limit was reached.
	StopReasonMaxEpochs StopReason = "max_epochs"
	// StopReasonMaxSteps means the global step limit was reached.
	StopReasonMaxSteps StopReason = "max_steps"
	// StopReasonEarlyStop means an external stop request was honored.
	StopReasonEarlyStop StopReason = "early_stop"
	// StopReasonNoData means the run had zero training batches.
	StopReasonNoData StopReason = "no_data"
	// StopReasonInterrupted means a cooperative interrupt exited the run at
	// an epoch boundary.
	StopReasonInterrupted StopReason = "interrupted"
)

// Decision is the outcome of one stop-condition evaluation.
type Decision struct {
	// Done is true when the outer loop must exit.
	Done bool

	// Reason records the first condition that triggered the stop.
	Reason StopReason

	// EarlyStop is true when an external stop request was honored this
	// check. The caller writes this back onto run-wide state.
	EarlyStop bool

	// Suppressed is true when an external stop request was deferred
	// because the minimum-duration guards are unmet.
	Suppressed bool
}

// resolveStop combines the hard upper limits, the minimum-duration guard,
// an external stop request, and the degenerate zero-batch case into a
// single decision.
//
// processedEpochs is used for the epoch limit rather than completed epochs
// because checkpoints are typically saved from the train-epoch-end hook,
// before the completed count is incremented.
func resolveStop(l Limits, processedEpochs, globalStep int, stopRequested bool, numBatches int) Decision {
	stopSteps := limitReached(globalStep, l.MaxSteps)
	stopEpochs := limitReached(processedEpochs, l.MaxEpochs)

	var d Decision
	if stopRequested {
		metMinEpochs := l.MinEpochs == 0 || processedEpochs >= l.MinEpochs
		metMinSteps := l.MinSteps == 0 || globalStep >= l.MinSteps
		if metMinEpochs && metMinSteps {
			d.EarlyStop = true
		} else {
			d.Suppressed = true
		}
	}

	switch {
	case stopSteps:
		d.Done = true
		d.Reason = StopReasonMaxSteps
	case d.EarlyStop:
		d.Done = true
		d.Reason = StopReasonEarlyStop
	case stopEpochs:
		d.Done = true
		d.Reason = StopReasonMaxEpochs
	case numBatches == 0:
		d.Done = true
		d.Reason = StopReasonNoData
	}
	return d
}
