// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/aibor/ezkvm/internal/lock"
	"github.com/aibor/ezkvm/internal/resource"
	"github.com/aibor/ezkvm/internal/sys"
	"github.com/google/uuid"
)

// pendingOwner marks resources claimed by the current invocation that are not
// persisted yet.
const pendingOwner = ""

// Ledger is the in-memory reconstruction of all pools and locks.
//
// It is not safe for concurrent use. One invocation owns one Ledger.
type Ledger struct {
	cfg     Config
	session string

	pools  map[string]*resource.Pool
	locks  map[string]lock.Lock
	owners map[string]string

	// pending are the IDs claimed since the last persist, in claim order.
	pending []string

	dirLock *sys.FileLock
	closed  bool
}

// Load builds a [Ledger] from the pool and lock directories of the given
// [Config].
//
// Files that fail to parse are logged and skipped. A directory that can not be
// read is logged and treated as empty. If a resource is referenced by more
// than one lock, the lock enumerated last wins and a warning is logged.
//
// An error is only returned if [Config.Exclusive] is set and the advisory
// lock can not be acquired before the context is done.
func Load(ctx context.Context, cfg Config) (*Ledger, error) {
	cfg.setDefaults()

	ledger := &Ledger{
		cfg:     cfg,
		session: uuid.NewString(),
		pools:   make(map[string]*resource.Pool),
		locks:   make(map[string]lock.Lock),
		owners:  make(map[string]string),
	}

	if cfg.Exclusive {
		err := ledger.acquireDirLock(ctx)
		if err != nil {
			return nil, err
		}
	}

	ledger.loadPools()
	ledger.loadLocks()

	cfg.Logger.Debug("Ledger loaded",
		slog.String("session", ledger.session),
		slog.Int("pools", len(ledger.pools)),
		slog.Int("locks", len(ledger.locks)),
		slog.Int("claimed", len(ledger.owners)))

	return ledger, nil
}

func (l *Ledger) acquireDirLock(ctx context.Context) error {
	err := os.MkdirAll(l.cfg.LockDir, 0o755)
	if err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	dirLock, err := sys.LockFile(ctx, filepath.Join(l.cfg.LockDir, dirLockFile))
	if err != nil {
		return fmt.Errorf("lock dir: %w", err)
	}

	l.dirLock = dirLock

	l.cfg.Logger.Debug("Lock dir acquired", slog.String("path", dirLock.Path()))

	return nil
}

func (l *Ledger) loadPools() {
	log := l.cfg.Logger.With(slog.String("dir", l.cfg.ResourceDir))

	ids, err := resource.List(l.cfg.ResourceDir)
	if err != nil {
		log.Warn("Cannot read resource directory", slog.Any("error", err))
		return
	}

	// Resource IDs are indexed without their pool, so an ID in two pools is
	// exclusive across both.
	seen := make(map[string]string)

	for _, id := range ids {
		pool, err := resource.Load(l.cfg.ResourceDir, id)
		if err != nil {
			log.Warn("Skipping pool", slog.String("pool", id), slog.Any("error", err))
			continue
		}

		for _, resID := range pool.ResourceIDs() {
			if other, exists := seen[resID]; exists {
				log.Warn("Resource ID declared in more than one pool",
					slog.String("resource", resID),
					slog.String("pool", id),
					slog.String("other_pool", other))
			}

			seen[resID] = id
		}

		l.pools[id] = pool
	}
}

func (l *Ledger) loadLocks() {
	log := l.cfg.Logger.With(slog.String("dir", l.cfg.LockDir))

	names, err := lock.List(l.cfg.LockDir)
	if err != nil {
		log.Warn("Cannot read lock directory", slog.Any("error", err))
		return
	}

	for _, name := range names {
		lck, err := lock.Read(l.cfg.LockDir, name)
		if err != nil {
			log.Warn("Skipping lock", slog.String("vm", name), slog.Any("error", err))
			continue
		}

		l.locks[name] = lck

		for _, id := range lck.Resources {
			if prev, exists := l.owners[id]; exists && prev != name {
				log.Warn("Resource referenced by more than one lock",
					slog.String("resource", id),
					slog.String("vm", name),
					slog.String("previous_vm", prev))
			}

			l.owners[id] = name
		}
	}
}

// Close releases the advisory lock, if held. Afterwards, mutating operations
// return [ErrClosed]. It is safe to call more than once.
func (l *Ledger) Close() error {
	if l.closed {
		return nil
	}

	l.closed = true

	err := l.dirLock.Unlock()
	if err != nil {
		return fmt.Errorf("release lock dir: %w", err)
	}

	return nil
}

// Session returns the random ID of this ledger instance. It is stored in every
// lock persisted by it.
func (l *Ledger) Session() string {
	return l.session
}

// Pool returns the pool with the given ID.
func (l *Ledger) Pool(id string) (*resource.Pool, bool) {
	pool, exists := l.pools[id]
	return pool, exists
}

// Pools returns all loaded pools sorted by ID.
func (l *Ledger) Pools() []*resource.Pool {
	ids := slices.Sorted(maps.Keys(l.pools))
	pools := make([]*resource.Pool, len(ids))

	for idx, id := range ids {
		pools[idx] = l.pools[id]
	}

	return pools
}

// Lock returns the loaded or persisted lock of the given VM.
func (l *Ledger) Lock(name string) (lock.Lock, bool) {
	lck, exists := l.locks[name]
	return lck, exists
}

// Locks returns all locks sorted by VM name.
func (l *Ledger) Locks() []lock.Lock {
	names := slices.Sorted(maps.Keys(l.locks))
	locks := make([]lock.Lock, len(names))

	for idx, name := range names {
		locks[idx] = l.locks[name]
	}

	return locks
}

// Owner returns the name of the VM owning the given resource ID. A resource
// claimed by this invocation but not persisted yet is owned, with an empty
// name.
func (l *Ledger) Owner(id string) (string, bool) {
	owner, exists := l.owners[id]
	return owner, exists
}

// Alive reports whether the process recorded in the lock still runs.
func (l *Ledger) Alive(lck lock.Lock) bool {
	return l.cfg.ProcessAlive(lck.PID)
}

// LiveLock returns the lock of the given VM if its process still runs.
func (l *Ledger) LiveLock(name string) (lock.Lock, bool) {
	lck, exists := l.locks[name]
	if !exists || !l.Alive(lck) {
		return lock.Lock{}, false
	}

	return lck, true
}
