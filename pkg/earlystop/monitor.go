// Package earlystop evaluates a stop condition over epoch-end metrics and
// raises an early-stop request when it holds. The request is cooperative:
// the run controller may defer it until minimum-duration guards are met, in
// which case the monitor re-raises it on the next epoch whose metrics still
// satisfy the condition.
package earlystop

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/strideml/stride/pkg/errors"
)

// Stopper receives early-stop requests. Satisfied by *trainer.Controller.
type Stopper interface {
	RequestStop()
}

// Monitor watches epoch-end metrics and requests a stop when the configured
// expression evaluates to true.
type Monitor struct {
	expression string
	program    *vm.Program
	stopper    Stopper
	logger     *slog.Logger
}

// NewMonitor compiles expression and returns a monitor that raises stop
// requests on stopper. The expression must return a boolean and may
// reference any metric name (e.g. "loss < 0.01 and accuracy > 0.95");
// metrics absent at evaluation time are nil.
func NewMonitor(expression string, stopper Stopper, logger *slog.Logger) (*Monitor, error) {
	if expression == "" {
		return nil, &errors.ConfigurationError{
			Field:      "expression",
			Message:    "stop condition must not be empty",
			Suggestion: "provide a boolean expression over metric names, e.g. \"loss < 0.01\"",
		}
	}
	if stopper == nil {
		return nil, &errors.ConfigurationError{
			Field:   "stopper",
			Message: "stopper is required",
		}
	}

	program, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &errors.ConfigurationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile stop condition: %s", err.Error()),
			Suggestion: "check expression syntax and ensure it returns a boolean",
		}
	}

	return &Monitor{
		expression: expression,
		program:    program,
		stopper:    stopper,
		logger:     logger.With(slog.String("component", "earlystop")),
	}, nil
}

// Observe evaluates the stop condition against the given metrics and, when
// it holds, requests a stop. Returns whether the condition held.
func (m *Monitor) Observe(metrics map[string]any) (bool, error) {
	result, err := expr.Run(m.program, metrics)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("stop condition evaluation failed: %s", err.Error()),
			Suggestion: "verify that the referenced metrics are produced at epoch end",
		}
	}

	hold, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("stop condition must return boolean, got %T (%v)", result, result),
		}
	}

	if hold {
		m.logger.Info("stop condition met, requesting stop",
			slog.String("condition", m.expression))
		m.stopper.RequestStop()
	}
	return hold, nil
}
