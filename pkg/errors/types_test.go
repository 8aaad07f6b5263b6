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

package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigurationError
		want string
	}{
		{
			name: "with field",
			err: &ConfigurationError{
				Field:   "max_epochs",
				Message: "must be a non-negative integer or -1",
			},
			want: "invalid configuration for max_epochs: must be a non-negative integer or -1",
		},
		{
			name: "without field",
			err: &ConfigurationError{
				Message: "inter-batch parallelism requires a GPU accelerator",
			},
			want: "invalid configuration: inter-batch parallelism requires a GPU accelerator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.Equal(t, "configuration", tt.err.ErrorType())
			assert.False(t, tt.err.IsRetryable())
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "min_epochs", Message: "must be >= 0"}
	assert.Equal(t, "validation failed on min_epochs: must be >= 0", err.Error())
	assert.Equal(t, "validation", err.ErrorType())
}

func TestNotFoundError_Error(t *testing.T) {
	err := &NotFoundError{Resource: "checkpoint", ID: "run-42"}
	assert.Equal(t, "checkpoint not found: run-42", err.Error())
}

func TestIsConfiguration(t *testing.T) {
	cfgErr := &ConfigurationError{Field: "max_steps", Message: "bad"}
	wrapped := fmt.Errorf("starting run: %w", cfgErr)

	assert.True(t, IsConfiguration(cfgErr))
	assert.True(t, IsConfiguration(wrapped))
	assert.False(t, IsConfiguration(New("plain")))
	assert.False(t, IsConfiguration(nil))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	base := New("boom")
	wrapped := Wrap(base, "loading checkpoint")
	assert.EqualError(t, wrapped, "loading checkpoint: boom")
	assert.True(t, Is(wrapped, base))

	formatted := Wrapf(base, "run %s", "abc")
	assert.EqualError(t, formatted, "run abc: boom")
}
