// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitCodeInterrupted is returned when the operator interrupted the
// session. The recorded data has been quarantined, not discarded.
const ExitCodeInterrupted = 130

// Fatal writes "error: err" to stderr and exits with code 1.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// ExitError carries a specific exit status out of run().
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// Exit terminates the process for the error returned by run(). A nil
// error exits 0; an *ExitError exits with its code; anything else goes
// through Fatal.
func Exit(err error) {
	if err == nil {
		os.Exit(0)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "error: %v\n", exitErr.Err)
		os.Exit(exitErr.Code)
	}
	Fatal(err)
}
