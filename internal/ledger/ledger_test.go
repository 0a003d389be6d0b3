// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ledger_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aibor/ezkvm/internal/ledger"
	"github.com/aibor/ezkvm/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gpuPool = `
id: gpu-a
devices:
  - id: g0
    pci: ["0000:01:00.0", "0000:01:00.1"]
  - id: g1
    pci: ["0000:02:00.0", "0000:02:00.1"]
`

type testEnv struct {
	resourceDir string
	lockDir     string
	alive       map[int]bool
	logs        *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	env := &testEnv{
		resourceDir: filepath.Join(base, "resources"),
		lockDir:     filepath.Join(base, "lock"),
		alive:       map[int]bool{},
		logs:        &bytes.Buffer{},
	}

	require.NoError(t, os.MkdirAll(env.resourceDir, 0o755))
	require.NoError(t, os.MkdirAll(env.lockDir, 0o755))

	return env
}

func (e *testEnv) writePool(t *testing.T, id, content string) {
	t.Helper()

	path := filepath.Join(e.resourceDir, id+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (e *testEnv) writeLock(t *testing.T, name, content string) {
	t.Helper()

	path := filepath.Join(e.lockDir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (e *testEnv) config() ledger.Config {
	return ledger.Config{
		ResourceDir:  e.resourceDir,
		LockDir:      e.lockDir,
		ProcessAlive: func(pid int) bool { return e.alive[pid] },
		Now: func() time.Time {
			return time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
		},
		Logger: slog.New(slog.NewTextHandler(e.logs, nil)),
	}
}

func (e *testEnv) load(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Load(t.Context(), e.config())
	require.NoError(t, err)

	t.Cleanup(func() { _ = l.Close() })

	return l
}

func TestClaim(t *testing.T) {
	t.Run("first fit until exhausted", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)

		l := env.load(t)

		id, err := l.Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g0", id)

		id, err = l.Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g1", id)

		_, err = l.Claim("gpu-a")
		require.ErrorIs(t, err, ledger.ErrResourceNotAvailable)

		var poolErr *ledger.PoolError
		require.ErrorAs(t, err, &poolErr)
		assert.Equal(t, "gpu-a", poolErr.Pool)

		assert.Equal(t, []string{"g0", "g1"}, l.Pending())
	})

	t.Run("unknown pool", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)

		_, err := env.load(t).Claim("unknown-pool")
		require.ErrorIs(t, err, ledger.ErrPoolNotFound)

		var poolErr *ledger.PoolError
		require.ErrorAs(t, err, &poolErr)
		assert.Equal(t, "unknown-pool", poolErr.Pool)
	})

	t.Run("skips locked", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm0", "name: vm0\npid: 1\nresources: [g0]\n")

		id, err := env.load(t).Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g1", id)
	})

	t.Run("stale lock still excludes", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm0", "name: vm0\npid: 1\nresources: [g0, g1]\n")

		_, err := env.load(t).Claim("gpu-a")
		require.ErrorIs(t, err, ledger.ErrResourceNotAvailable)
	})

	t.Run("id shared across pools", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writePool(t, "gpu-b", "devices:\n  - id: g1\n    pci: [\"0000:02:00.0\"]\n")

		l := env.load(t)

		id, err := l.Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g0", id)

		id, err = l.Claim("gpu-b")
		require.NoError(t, err)
		assert.Equal(t, "g1", id)

		_, err = l.Claim("gpu-a")
		require.ErrorIs(t, err, ledger.ErrResourceNotAvailable)
		assert.Contains(t, env.logs.String(), "more than one pool")
	})

	t.Run("closed", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)

		l := env.load(t)
		require.NoError(t, l.Close())

		_, err := l.Claim("gpu-a")
		require.ErrorIs(t, err, ledger.ErrClosed)
	})
}

func TestAbandon(t *testing.T) {
	env := newTestEnv(t)
	env.writePool(t, "gpu-a", gpuPool)

	l := env.load(t)

	_, err := l.Claim("gpu-a")
	require.NoError(t, err)

	l.Abandon()
	assert.Empty(t, l.Pending())

	_, owned := l.Owner("g0")
	assert.False(t, owned)

	id, err := l.Claim("gpu-a")
	require.NoError(t, err)
	assert.Equal(t, "g0", id)
}

func TestResource(t *testing.T) {
	env := newTestEnv(t)
	env.writePool(t, "gpu-a", gpuPool)

	l := env.load(t)

	desc, err := l.Resource("gpu-a", "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", desc.ID)
	assert.Equal(t, []string{"0000:02:00.0", "0000:02:00.1"}, desc.PCIAddresses())

	_, err = l.Resource("gpu-a", "g9")
	require.ErrorIs(t, err, ledger.ErrResourceNotFound)

	_, err = l.Resource("gpu-z", "g0")
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
}

func TestPersistRelease(t *testing.T) {
	env := newTestEnv(t)
	env.writePool(t, "gpu-a", gpuPool)

	first := env.load(t)

	id, err := first.Claim("gpu-a")
	require.NoError(t, err)
	require.Equal(t, "g0", id)

	require.NoError(t, first.Persist("vm1", 1234))
	assert.Empty(t, first.Pending())

	owner, _ := first.Owner("g0")
	assert.Equal(t, "vm1", owner)

	second := env.load(t)

	persisted, exists := second.Lock("vm1")
	require.True(t, exists)
	assert.Equal(t, lock.Lock{
		Name:      "vm1",
		PID:       1234,
		Resources: []string{"g0"},
		Session:   first.Session(),
		Created:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, persisted)

	id, err = second.Claim("gpu-a")
	require.NoError(t, err)
	assert.Equal(t, "g1", id)
	second.Abandon()

	require.NoError(t, second.Release("vm1"))

	_, exists = second.Lock("vm1")
	assert.False(t, exists)

	id, err = env.load(t).Claim("gpu-a")
	require.NoError(t, err)
	assert.Equal(t, "g0", id)
}

func TestPersist(t *testing.T) {
	t.Run("preserves claim order", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writePool(t, "nic", "devices:\n  - id: vf0\n    pci: [\"0000:03:10.0\"]\n    parent: eth0\n    vf: 0\n")

		l := env.load(t)

		for _, pool := range []string{"nic", "gpu-a", "gpu-a"} {
			_, err := l.Claim(pool)
			require.NoError(t, err)
		}

		require.NoError(t, l.Persist("vm1", 10))

		persisted, err := lock.Read(env.lockDir, "vm1")
		require.NoError(t, err)
		assert.Equal(t, []string{"vf0", "g0", "g1"}, persisted.Resources)
	})

	t.Run("without claims", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.load(t).Persist("vm1", 10))

		persisted, err := lock.Read(env.lockDir, "vm1")
		require.NoError(t, err)
		assert.Empty(t, persisted.Resources)
	})

	t.Run("appends within session", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)

		l := env.load(t)

		_, err := l.Claim("gpu-a")
		require.NoError(t, err)
		require.NoError(t, l.Persist("vm1", 10))

		_, err = l.Claim("gpu-a")
		require.NoError(t, err)
		require.NoError(t, l.Persist("vm1", 10))

		persisted, err := lock.Read(env.lockDir, "vm1")
		require.NoError(t, err)
		assert.Equal(t, []string{"g0", "g1"}, persisted.Resources)
	})

	t.Run("refuses live lock", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm1", "name: vm1\npid: 99\nresources: [g0]\n")
		env.alive[99] = true

		l := env.load(t)

		_, err := l.Claim("gpu-a")
		require.NoError(t, err)

		err = l.Persist("vm1", 200)
		require.ErrorIs(t, err, ledger.ErrLockHeld)
		assert.Equal(t, []string{"g1"}, l.Pending())

		persisted, err := lock.Read(env.lockDir, "vm1")
		require.NoError(t, err)
		assert.Equal(t, 99, persisted.PID)
	})

	t.Run("overwrites stale lock", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm1", "name: vm1\npid: 99\nresources: [g0]\n")

		l := env.load(t)

		id, err := l.Claim("gpu-a")
		require.NoError(t, err)
		require.Equal(t, "g1", id)

		require.NoError(t, l.Persist("vm1", 200))
		assert.Contains(t, env.logs.String(), "Overwriting stale lock")

		persisted, err := lock.Read(env.lockDir, "vm1")
		require.NoError(t, err)
		assert.Equal(t, 200, persisted.PID)
		assert.Equal(t, []string{"g1"}, persisted.Resources)

		_, owned := l.Owner("g0")
		assert.False(t, owned)
	})

	t.Run("lock written after load", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)

		l := env.load(t)

		env.writeLock(t, "vm1", "name: vm1\npid: 99\nresources: [g0]\n")
		env.alive[99] = true

		err := l.Persist("vm1", 200)
		require.ErrorIs(t, err, ledger.ErrLockHeld)
	})

	t.Run("invalid name", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.load(t).Persist("../vm1", 200)
		require.ErrorIs(t, err, lock.ErrInvalidName)
	})

	t.Run("write error", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)

		l := env.load(t)

		_, err := l.Claim("gpu-a")
		require.NoError(t, err)

		require.NoError(t, os.RemoveAll(env.lockDir))
		require.NoError(t, os.WriteFile(env.lockDir, nil, 0o600))

		err = l.Persist("vm1", 200)
		require.ErrorIs(t, err, lock.ErrWrite)
		assert.Equal(t, []string{"g0"}, l.Pending())
	})
}

func TestRelease(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.load(t).Release("vm1")
		require.ErrorIs(t, err, ledger.ErrLockNotFound)
	})

	t.Run("deleted behind the back", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm1", "name: vm1\npid: 99\nresources: [g0]\n")

		l := env.load(t)

		require.NoError(t, os.Remove(filepath.Join(env.lockDir, "vm1.yaml")))

		err := l.Release("vm1")
		require.ErrorIs(t, err, ledger.ErrLockNotFound)

		id, err := l.Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g0", id)
	})

	t.Run("delete error keeps lock", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm1", "name: vm1\npid: 99\nresources: [g0]\n")

		l := env.load(t)

		path := filepath.Join(env.lockDir, "vm1.yaml")
		require.NoError(t, os.Remove(path))
		require.NoError(t, os.Mkdir(path, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0o600))

		err := l.Release("vm1")
		require.ErrorIs(t, err, lock.ErrDelete)

		lck, exists := l.Lock("vm1")
		assert.True(t, exists)
		assert.Equal(t, []string{"g0"}, lck.Resources)

		owner, owned := l.Owner("g0")
		assert.True(t, owned)
		assert.Equal(t, "vm1", owner)

		id, err := l.Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g1", id)
	})

	t.Run("keeps pending claims", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm1", "name: vm1\npid: 99\nresources: [g0]\n")

		l := env.load(t)

		_, err := l.Claim("gpu-a")
		require.NoError(t, err)
		require.NoError(t, l.Release("vm1"))

		assert.Equal(t, []string{"g1"}, l.Pending())
	})
}

func TestLoad(t *testing.T) {
	t.Run("skips malformed files", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writePool(t, "broken", "devices: [\n")
		env.writeLock(t, "bad", "resources: {\n")
		env.writeLock(t, "vm1", "name: vm1\npid: 5\nresources: [g1]\n")

		l := env.load(t)

		_, exists := l.Pool("broken")
		assert.False(t, exists)
		assert.Len(t, l.Pools(), 1)

		_, exists = l.Lock("bad")
		assert.False(t, exists)

		owner, owned := l.Owner("g1")
		assert.True(t, owned)
		assert.Equal(t, "vm1", owner)

		assert.Contains(t, env.logs.String(), "Skipping pool")
		assert.Contains(t, env.logs.String(), "Skipping lock")
	})

	t.Run("symlinked files", func(t *testing.T) {
		env := newTestEnv(t)
		shared := t.TempDir()

		poolFile := filepath.Join(shared, "gpu-a.yaml")
		require.NoError(t, os.WriteFile(poolFile, []byte(gpuPool), 0o600))
		require.NoError(t, os.Symlink(poolFile, filepath.Join(env.resourceDir, "gpu-a.yaml")))

		lockFile := filepath.Join(shared, "vm1.yaml")
		require.NoError(t, os.WriteFile(lockFile, []byte("name: vm1\npid: 5\nresources: [g0]\n"), 0o600))
		require.NoError(t, os.Symlink(lockFile, filepath.Join(env.lockDir, "vm1.yaml")))

		l := env.load(t)

		_, exists := l.Lock("vm1")
		assert.True(t, exists)

		id, err := l.Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g1", id)
	})

	t.Run("missing directories", func(t *testing.T) {
		base := t.TempDir()

		l, err := ledger.Load(t.Context(), ledger.Config{
			ResourceDir: filepath.Join(base, "none"),
			LockDir:     filepath.Join(base, "none"),
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = l.Close() })

		assert.Empty(t, l.Pools())
		assert.Empty(t, l.Locks())
	})

	t.Run("duplicate reference last wins", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm1", "name: vm1\npid: 5\nresources: [g0]\n")
		env.writeLock(t, "vm2", "name: vm2\npid: 6\nresources: [g0]\n")

		l := env.load(t)

		owner, _ := l.Owner("g0")
		assert.Equal(t, "vm2", owner)
		assert.Contains(t, env.logs.String(), "more than one lock")

		require.NoError(t, l.Release("vm1"))

		owner, _ = l.Owner("g0")
		assert.Equal(t, "vm2", owner)
	})

	t.Run("release of duplicate reference keeps other lock", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "gpu-a", gpuPool)
		env.writeLock(t, "vm1", "name: vm1\npid: 5\nresources: [g0]\n")
		env.writeLock(t, "vm2", "name: vm2\npid: 6\nresources: [g0]\n")

		l := env.load(t)

		require.NoError(t, l.Release("vm2"))

		owner, owned := l.Owner("g0")
		assert.True(t, owned)
		assert.Equal(t, "vm1", owner)

		id, err := l.Claim("gpu-a")
		require.NoError(t, err)
		assert.Equal(t, "g1", id)

		require.NoError(t, l.Release("vm1"))

		_, owned = l.Owner("g0")
		assert.False(t, owned)
	})

	t.Run("introspection sorted", func(t *testing.T) {
		env := newTestEnv(t)
		env.writePool(t, "b", "devices:\n  - id: b0\n")
		env.writePool(t, "a", "devices:\n  - id: a0\n")
		env.writeLock(t, "vm2", "pid: 2\n")
		env.writeLock(t, "vm1", "pid: 1\n")
		env.alive[2] = true

		l := env.load(t)

		pools := l.Pools()
		require.Len(t, pools, 2)
		assert.Equal(t, "a", pools[0].ID())
		assert.Equal(t, "b", pools[1].ID())

		locks := l.Locks()
		require.Len(t, locks, 2)
		assert.Equal(t, "vm1", locks[0].Name)
		assert.Equal(t, "vm2", locks[1].Name)

		_, live := l.LiveLock("vm1")
		assert.False(t, live)

		lck, live := l.LiveLock("vm2")
		assert.True(t, live)
		assert.Equal(t, 2, lck.PID)
	})
}

func TestLoadExclusive(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.Exclusive = true

	first, err := ledger.Load(t.Context(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	_, err = ledger.Load(ctx, cfg)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second, err := ledger.Load(t.Context(), cfg)
	require.NoError(t, err)
	require.NoError(t, second.Close())

	names, err := lock.List(env.lockDir)
	require.NoError(t, err)
	assert.Empty(t, names, "advisory lock file must not be listed as lock")
}
