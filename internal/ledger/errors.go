// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolNotFound is returned if a claim names a pool that is not loaded.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrResourceNotAvailable is returned if all resources of a pool are
	// claimed.
	ErrResourceNotAvailable = errors.New("resource not available")

	// ErrResourceNotFound is returned if a pool has no resource with the
	// requested ID.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrLockNotFound is returned if there is no lock for a VM name.
	ErrLockNotFound = errors.New("lock not found")

	// ErrLockHeld is returned if a lock is owned by a process that is still
	// running.
	ErrLockHeld = errors.New("lock held by running process")

	// ErrClosed is returned if the ledger is used after [Ledger.Close].
	ErrClosed = errors.New("ledger closed")
)

// PoolError is returned by pool related operations. It names the pool the
// error occurred for.
type PoolError struct {
	Pool string
	Err  error
}

// Error implements the [error] interface.
func (e *PoolError) Error() string {
	return fmt.Sprintf("pool %s: %v", e.Pool, e.Err)
}

// Is implements the [errors.Is] interface.
func (*PoolError) Is(other error) bool {
	_, ok := other.(*PoolError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *PoolError) Unwrap() error {
	return e.Err
}
