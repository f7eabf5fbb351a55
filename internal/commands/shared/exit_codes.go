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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tombee/rdstation-connector/internal/config"
	"github.com/tombee/rdstation-connector/internal/operation"
)

const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitInvalidInput    = 2
	ExitConfigError     = 3
	ExitAuthError       = 4
	ExitNonInteractive  = 70 // Prompt needed in non-interactive mode (EX_SOFTWARE from sysexits.h)
)

// ExitError carries a process exit code alongside its cause.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitExecutionFailed,
		Message: msg,
		Cause:   cause,
	}
}

func NewInvalidInputError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidInput,
		Message: msg,
		Cause:   cause,
	}
}

func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitConfigError,
		Message: msg,
		Cause:   cause,
	}
}

func NewAuthError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitAuthError,
		Message: msg,
		Cause:   cause,
	}
}

func NewNonInteractiveError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitNonInteractive,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCode picks the exit code for err. Connector errors without an explicit
// ExitError map by type.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, config.ErrInvalidConfig) {
		return ExitConfigError
	}

	var opErr *operation.Error
	if errors.As(err, &opErr) {
		switch opErr.Type {
		case operation.ErrorTypeValidation:
			return ExitInvalidInput
		case operation.ErrorTypeConfiguration:
			return ExitConfigError
		case operation.ErrorTypeAuth:
			return ExitAuthError
		}
	}
	return ExitExecutionFailed
}

// HandleExitError prints err with any suggestion and exits.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	writeError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

func writeError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	if suggestion := suggestionFor(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}

// suggestionFor walks the error chain for the first error offering a suggestion.
func suggestionFor(err error) string {
	for err != nil {
		if s, ok := err.(interface{ Suggestion() string }); ok {
			return s.Suggestion()
		}
		err = errors.Unwrap(err)
	}
	return ""
}
