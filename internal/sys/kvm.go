// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import "os"

const kvmDevice = "/dev/kvm"

// KVMAvailable checks if the KVM device is present and writable for the
// current user.
func KVMAvailable() bool {
	f, err := os.OpenFile(kvmDevice, os.O_WRONLY, 0)
	if err != nil {
		return false
	}

	_ = f.Close()

	return true
}
