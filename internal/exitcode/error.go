// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package exitcode defines the exit codes of the ezkvm command and the error
// type that carries them.
package exitcode

import (
	"errors"
)

// Exit codes. Scripts may rely on them to tell retryable failures apart.
const (
	OK          = 0
	Failure     = 1
	Usage       = 2
	NotFound    = 3
	Unavailable = 4
	Running     = 5
	Timeout     = 6
)

// Error is an error with the exit code the command should exit with.
type Error struct {
	Code int
	Err  error
}

// New returns an [Error] for the given code and error. If err is nil, nil is
// returned.
func New(code int, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Code: code, Err: err}
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	return e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*Error) Is(other error) bool {
	_, ok := other.(*Error)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// From returns the exit code for the given error and if the error was an
// [Error].
//
// If the error is nil, the exit code is [OK]. If the error is an [Error] the
// exit code is its code. Otherwise the exit code is [Failure].
func From(err error) (int, bool) {
	if err == nil {
		return OK, false
	}

	var exitErr *Error
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}

	return Failure, false
}
