// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aibor/ezkvm/internal/lock"
)

// Persist writes the lock of the given VM with all pending claims.
//
// A lock with the same name that is already on disk is re-read first. If its
// process is still running and it was not written by this ledger, [ErrLockHeld]
// is returned and nothing is written. A stale lock is overwritten with a
// warning. Calling Persist again for the same VM within one ledger appends the
// new pending claims to the lock.
//
// On success, the pending claims are owned by the VM. On error, they stay
// pending and can be given up with [Ledger.Abandon].
func (l *Ledger) Persist(name string, pid int) error {
	if l.closed {
		return ErrClosed
	}

	err := lock.ValidateName(name)
	if err != nil {
		return err
	}

	next := lock.Lock{
		Name:      name,
		PID:       pid,
		Resources: []string{},
		Session:   l.session,
		Created:   l.cfg.Now().UTC().Truncate(time.Second),
	}

	if prev, exists := l.current(name); exists {
		switch {
		case prev.Session == l.session:
			next.Resources = slices.Clone(prev.Resources)
		case prev.PID != pid && l.Alive(prev):
			return fmt.Errorf("%w: %s (pid %d)", ErrLockHeld, name, prev.PID)
		default:
			l.cfg.Logger.Warn("Overwriting stale lock",
				slog.String("vm", name),
				slog.Int("pid", prev.PID),
				slog.Any("resources", prev.Resources))
		}
	}

	for _, id := range l.pending {
		if !next.Holds(id) {
			next.Add(id)
		}
	}

	err = next.Write(l.cfg.LockDir)
	if err != nil {
		return err
	}

	l.forget(name)
	l.locks[name] = next

	for _, id := range next.Resources {
		l.owners[id] = name
	}

	l.pending = nil

	l.cfg.Logger.Info("Lock persisted",
		slog.String("vm", name),
		slog.Int("pid", pid),
		slog.Any("resources", next.Resources))

	return nil
}

// current returns the lock of the given VM as it is on disk now. It falls back
// to the loaded lock if the file can not be read, so a broken file does not
// hide a live owner.
func (l *Ledger) current(name string) (lock.Lock, bool) {
	onDisk, err := lock.Read(l.cfg.LockDir, name)
	switch {
	case err == nil:
		return onDisk, true
	case errors.Is(err, lock.ErrNotFound):
		return lock.Lock{}, false
	default:
		l.cfg.Logger.Warn("Existing lock unreadable",
			slog.String("vm", name),
			slog.Any("error", err))

		loaded, exists := l.locks[name]

		return loaded, exists
	}
}

// Release deletes the lock of the given VM and frees its resources.
//
// It returns [ErrLockNotFound] if there is no lock file. The in-memory state
// of the VM is dropped in that case anyway, so callers may treat it as
// success.
func (l *Ledger) Release(name string) error {
	if l.closed {
		return ErrClosed
	}

	err := lock.Delete(l.cfg.LockDir, name)
	if err != nil {
		if errors.Is(err, lock.ErrNotFound) {
			l.forget(name)
			return fmt.Errorf("%w: %s", ErrLockNotFound, name)
		}

		return err
	}

	l.forget(name)

	l.cfg.Logger.Info("Lock released", slog.String("vm", name))

	return nil
}

// forget drops the lock of the given VM and its ownerships from memory.
// Resources it owned fall back to the remaining locks referencing them, with
// the same last-wins order as on load. Pending claims are kept.
func (l *Ledger) forget(name string) {
	var freed []string

	for id, owner := range l.owners {
		if owner == name {
			freed = append(freed, id)
			delete(l.owners, id)
		}
	}

	delete(l.locks, name)

	for _, lck := range l.Locks() {
		for _, id := range freed {
			if lck.Holds(id) {
				l.owners[id] = lck.Name
			}
		}
	}
}
