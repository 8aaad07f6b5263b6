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

// Package errors defines the error taxonomy shared across the training runner.
package errors

import (
	"fmt"
)

// ConfigurationError represents an invalid run configuration.
// Use this for invalid limit values, unsupported capability combinations,
// or hook contract violations. Configuration errors are fatal: they are
// raised synchronously, never retried, and propagate unmodified to the
// top-level caller.
type ConfigurationError struct {
	// Field identifies which configuration field or hook is at fault
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

// ErrorType returns the error category for classification.
func (e *ConfigurationError) ErrorType() string { return "configuration" }

// IsRetryable returns false: configuration errors require user action.
func (e *ConfigurationError) IsRetryable() bool { return false }

// ValidationError represents user input validation failures.
// Use this for malformed run configuration files or constraint violations
// detected before a run is constructed.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType returns the error category for classification.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable returns false: validation errors require user action.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a missing resource, such as a checkpoint or a
// run record requested by ID.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "checkpoint", "run")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType returns the error category for classification.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable returns false.
func (e *NotFoundError) IsRetryable() bool { return false }
