// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ledger

import (
	"log/slog"
	"slices"

	"github.com/aibor/ezkvm/internal/resource"
)

// Claim reserves the first free resource of the given pool for the current
// invocation and returns its ID.
//
// Resources are scanned in declaration order, so the result is reproducible
// for an unchanged pool and lock set. A claimed resource is immediately
// excluded from further claims of this ledger. Nothing is written to disk
// until [Ledger.Persist].
//
// It returns a [PoolError] wrapping [ErrPoolNotFound] or
// [ErrResourceNotAvailable].
func (l *Ledger) Claim(poolID string) (string, error) {
	if l.closed {
		return "", ErrClosed
	}

	pool, exists := l.pools[poolID]
	if !exists {
		return "", &PoolError{Pool: poolID, Err: ErrPoolNotFound}
	}

	for _, id := range pool.ResourceIDs() {
		if _, taken := l.owners[id]; taken {
			continue
		}

		l.owners[id] = pendingOwner
		l.pending = append(l.pending, id)

		l.cfg.Logger.Debug("Resource claimed",
			slog.String("pool", poolID),
			slog.String("resource", id))

		return id, nil
	}

	return "", &PoolError{Pool: poolID, Err: ErrResourceNotAvailable}
}

// Resource returns the descriptor of the resource with the given ID in the
// given pool.
func (l *Ledger) Resource(poolID, id string) (resource.Descriptor, error) {
	pool, exists := l.pools[poolID]
	if !exists {
		return resource.Descriptor{}, &PoolError{Pool: poolID, Err: ErrPoolNotFound}
	}

	desc, exists := pool.Resource(id)
	if !exists {
		return resource.Descriptor{}, &PoolError{Pool: poolID, Err: ErrResourceNotFound}
	}

	return desc, nil
}

// Pending returns the IDs claimed but not persisted yet, in claim order.
func (l *Ledger) Pending() []string {
	return slices.Clone(l.pending)
}

// Abandon gives up all pending claims, so they can be claimed again.
func (l *Ledger) Abandon() {
	for _, id := range l.pending {
		if l.owners[id] == pendingOwner {
			delete(l.owners, id)
		}
	}

	if len(l.pending) > 0 {
		l.cfg.Logger.Debug("Pending claims abandoned",
			slog.Any("resources", l.pending))
	}

	l.pending = nil
}
