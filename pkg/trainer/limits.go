package trainer

import (
	"fmt"

	"github.com/strideml/stride/pkg/errors"
)

// Unbounded disables an upper limit when assigned to MaxEpochs or MaxSteps.
const Unbounded = -1

// Limits bounds a training run. MaxEpochs and MaxSteps are hard upper
// limits (-1 = unbounded); MinEpochs and MinSteps are minimum-duration
// guards that defer an externally requested early stop until both are met.
// MinSteps of 0 means no step guard.
type Limits struct {
	MaxEpochs int
	MinEpochs int
	MaxSteps  int
	MinSteps  int
}

// Validate checks the limit values. Invalid limits are configuration
// errors: fatal and surfaced synchronously.
func (l Limits) Validate() error {
	if l.MaxEpochs < Unbounded {
		return &errors.ConfigurationError{
			Field:      "max_epochs",
			Message:    fmt.Sprintf("must be a non-negative integer or -1, got %d", l.MaxEpochs),
			Suggestion: "use -1 to run without an epoch limit",
		}
	}
	if l.MaxSteps < Unbounded {
		return &errors.ConfigurationError{
			Field:      "max_steps",
			Message:    fmt.Sprintf("must be a non-negative integer or -1, got %d", l.MaxSteps),
			Suggestion: "use -1 to run without a step limit",
		}
	}
	if l.MinEpochs < 0 {
		return &errors.ConfigurationError{
			Field:   "min_epochs",
			Message: fmt.Sprintf("must be >= 0, got %d", l.MinEpochs),
		}
	}
	if l.MinSteps < 0 {
		return &errors.ConfigurationError{
			Field:   "min_steps",
			Message: fmt.Sprintf("must be >= 0, got %d", l.MinSteps),
		}
	}
	return nil
}

// limitReached reports whether current has reached an upper limit.
// A maximum of Unbounded never triggers.
func limitReached(current, maximum int) bool {
	return maximum != Unbounded && current >= maximum
}
