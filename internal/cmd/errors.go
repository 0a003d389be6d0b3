// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
)

var (
	// ErrAlreadyRunning is returned on start if the VM holds a live lock.
	ErrAlreadyRunning = errors.New("already running")

	// ErrStopTimeout is returned if a VM does not exit within the stop
	// timeout.
	ErrStopTimeout = errors.New("did not exit in time")

	// ErrUsage is returned for invalid command line usage.
	ErrUsage = errors.New("invalid usage")
)
