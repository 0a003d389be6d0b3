// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ledger

import (
	"log/slog"
	"time"

	"github.com/aibor/ezkvm/internal/sys"
)

// Default directories.
const (
	DefaultResourceDir = "/etc/ezkvm/resources"
	DefaultLockDir     = "/var/ezkvm/lock"
)

// dirLockFile is the advisory lock file in the lock directory. The leading dot
// keeps it out of lock file enumeration.
const dirLockFile = ".ledger.lock"

// Config configures a [Ledger].
type Config struct {
	// ResourceDir contains one definition file per pool.
	ResourceDir string

	// LockDir contains one lock file per running VM.
	LockDir string

	// Exclusive makes [Load] acquire an advisory lock on LockDir that is held
	// until [Ledger.Close].
	Exclusive bool

	// ProcessAlive reports whether the process owning a lock still runs.
	// Defaults to [sys.ProcessAlive].
	ProcessAlive func(pid int) bool

	// Now returns the current time. Defaults to [time.Now].
	Now func() time.Time

	// Logger receives load warnings and claim events. Defaults to
	// [slog.Default].
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.ResourceDir == "" {
		c.ResourceDir = DefaultResourceDir
	}

	if c.LockDir == "" {
		c.LockDir = DefaultLockDir
	}

	if c.ProcessAlive == nil {
		c.ProcessAlive = sys.ProcessAlive
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
