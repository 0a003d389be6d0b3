// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package resource provides the static catalogue of claimable host hardware.
//
// A [Pool] is an ordered list of [Descriptor]s loaded from one YAML file named
// after the pool ID. Each [Descriptor] carries one of a closed set of payloads
// describing how the hardware is attached: a single PCI function, a group of
// PCI functions of one multi-function device, an SR-IOV virtual function bound
// to its parent interface, or some other device. Pools are immutable once
// loaded.
package resource
