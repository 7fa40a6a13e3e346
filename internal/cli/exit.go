package cli

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/crmsync/internal/config"
)

// Exit codes for CLI commands.
const (
	ExitSuccess     = 0
	ExitFailure     = 1 // run failed
	ExitConfigError = 2 // missing credentials or bad flags
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err. Missing credentials always
// map to ExitConfigError, anything else unknown to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, config.ErrMissingCredentials) {
		return ExitConfigError
	}
	return ExitFailure
}

// runError picks the exit code for an engine failure.
func runError(message string, err error) *ExitError {
	if errors.Is(err, config.ErrMissingCredentials) {
		return WrapExitError(ExitConfigError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}
