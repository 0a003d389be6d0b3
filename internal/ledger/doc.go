// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ledger arbitrates exclusive claims on pooled host hardware among
// independent, short-lived VM start invocations.
//
// No state survives between invocations in memory. Every invocation calls
// [Load], which rebuilds the catalogue of resource pools and the set of
// persisted locks from their directories and derives which resource is owned
// by which VM. While the launch arguments of a VM are assembled, each pooled
// device calls [Ledger.Claim]. Once the VM process runs, [Ledger.Persist]
// writes a single lock file with all IDs claimed by the invocation. Stopping
// the VM calls [Ledger.Release], which deletes the lock file.
//
// Load is forgiving: malformed pool or lock files are skipped and unreadable
// directories yield an empty ledger. Claims and persistence fail hard.
//
// With [Config.Exclusive] the ledger holds an advisory lock on the lock
// directory from [Load] until [Ledger.Close], which serialises concurrent
// invocations. Without it, two invocations may claim the same resource if both
// load before either persists.
package ledger
