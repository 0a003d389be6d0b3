// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import "fmt"

// Kind names the payload variant of a [Descriptor].
type Kind string

const (
	// KindPCI is a single PCI function.
	KindPCI Kind = "pci"
	// KindPCIMultifunction is a group of functions of one PCI device that must
	// be passed through together, like a GPU with its audio function.
	KindPCIMultifunction Kind = "pci-multifunction"
	// KindSRIOVVF is an SR-IOV virtual function of a physical network
	// interface.
	KindSRIOVVF Kind = "sriov-vf"
	// KindOther is any device without PCI passthrough semantics.
	KindOther Kind = "other"
)

// String implements [fmt.Stringer].
func (k Kind) String() string {
	return string(k)
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (k *Kind) UnmarshalText(text []byte) error {
	switch kind := Kind(text); kind {
	case KindPCI, KindPCIMultifunction, KindSRIOVVF, KindOther:
		*k = kind
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, text)
	}

	return nil
}
