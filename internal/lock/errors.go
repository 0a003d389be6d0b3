// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned if no lock file exists for a name.
	ErrNotFound = errors.New("lock not found")

	// ErrEmptyFile is returned if a lock file has no content.
	ErrEmptyFile = errors.New("empty file")

	// ErrNameMismatch is returned if the name in a lock file does not match
	// the file name.
	ErrNameMismatch = errors.New("lock name does not match file name")

	// ErrInvalidName is returned for names that can not be used as file stem.
	ErrInvalidName = errors.New("invalid lock name")

	// ErrWrite is returned if a lock file can not be written.
	ErrWrite = errors.New("write lock")

	// ErrDelete is returned if a lock file can not be deleted.
	ErrDelete = errors.New("delete lock")
)

// ParseError wraps any error that makes a lock file unusable.
type ParseError struct {
	Path string
	Err  error
}

// Error implements the [error] interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Is implements the [errors.Is] interface.
func (*ParseError) Is(other error) bool {
	_, ok := other.(*ParseError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ParseError) Unwrap() error {
	return e.Err
}
