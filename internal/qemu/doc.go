// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu provides utilities for composing and spawning QEMU system
// virtualization commands for long running VMs. It expects the required QEMU
// binary to be present on the system.
//
// Claimed host devices are passed through with vfio-pci, each behind its own
// PCIe root port. The spawned QEMU process runs in its own session and
// outlives the invocation that started it. It is controlled afterwards via its
// QMP socket.
package qemu
