// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"errors"
	"fmt"
)

var (
	// ErrArgumentCollision is returned if two [Argument]s are considered equal.
	ErrArgumentCollision = errors.New("colliding args")

	// ErrEarlyExit is returned if the QEMU process exits before the start
	// timeout passed.
	ErrEarlyExit = errors.New("exited during startup")

	// ErrTooManyFunctions is returned if a multi-function device has more
	// functions than a PCI slot can hold.
	ErrTooManyFunctions = errors.New("too many functions")

	// ErrNoDriver is returned if a generic device has no driver property.
	ErrNoDriver = errors.New("no driver property")
)

// ArgumentError indicates an issue with an input argument.
type ArgumentError struct {
	msg string
}

// Error implements the [error] interface.
func (e *ArgumentError) Error() string {
	return "argument error: " + e.msg
}

// Is implements the [errors.Is] interface.
func (*ArgumentError) Is(other error) bool {
	_, ok := other.(*ArgumentError)
	return ok
}

// CommandError wraps any error occurred during start of a [Command].
type CommandError struct {
	Err      error
	ExitCode int
}

// Error implements the [error] interface.
func (e *CommandError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("qemu: %v (exit code %d)", e.Err, e.ExitCode)
	}

	return "qemu: " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*CommandError) Is(other error) bool {
	_, ok := other.(*CommandError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CommandError) Unwrap() error {
	return e.Err
}
