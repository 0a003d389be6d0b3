// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolNotFound is returned if no definition file exists for a pool.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrEmptyFile is returned if a pool definition file has no content.
	ErrEmptyFile = errors.New("empty file")

	// ErrEmptyID is returned if a pool or resource has no ID.
	ErrEmptyID = errors.New("empty id")

	// ErrDuplicateID is returned if a pool declares a resource ID more than
	// once.
	ErrDuplicateID = errors.New("duplicate resource id")

	// ErrPoolIDMismatch is returned if the pool ID declared in a file does not
	// match the file name.
	ErrPoolIDMismatch = errors.New("pool id does not match file name")

	// ErrUnknownKind is returned for unsupported resource types.
	ErrUnknownKind = errors.New("unknown resource type")

	// ErrInvalidDescriptor is returned if the fields of a resource do not fit
	// its type.
	ErrInvalidDescriptor = errors.New("invalid resource")

	// ErrInvalidPCIAddress is returned for malformed PCI addresses.
	ErrInvalidPCIAddress = errors.New("invalid pci address")
)

// ParseError wraps any error that makes a pool definition file unusable.
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
