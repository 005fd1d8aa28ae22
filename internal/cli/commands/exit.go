package commands

import (
	"errors"
	"fmt"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFindings = 1
	ExitInternal = 2
)

// ErrFindings reports that a check produced error-level findings.
var ErrFindings = errors.New("error-level findings reported")

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// internal wraps err as an internal failure.
func internal(err error) error {
	if err == nil {
		return nil
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return err
	}
	return &ExitError{Code: ExitInternal, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return ExitInternal
}
