// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"fmt"
	"regexp"
	"slices"
)

var pciAddressPattern = regexp.MustCompile(
	`^([0-9a-fA-F]{4}:)?[0-9a-fA-F]{2}:[0-1][0-9a-fA-F]\.[0-7]$`,
)

// ValidatePCIAddress checks the address is in the form "[DDDD:]BB:SS.F".
func ValidatePCIAddress(addr string) error {
	if !pciAddressPattern.MatchString(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidPCIAddress, addr)
	}

	return nil
}

// Payload is the device specific part of a [Descriptor].
//
// The set of implementations is closed: [PCIFunction], [PCIGroup],
// [VirtualFunction] and [OtherDevice]. Consumers are expected to switch over
// all of them and treat anything else as an error.
//
//sumtype:decl
type Payload interface {
	// Kind returns the kind of the payload.
	Kind() Kind

	isPayload()
}

// PCIFunction is a single host PCI function.
type PCIFunction struct {
	Address string
}

// PCIGroup is a set of functions of one multi-function PCI device. The first
// address is the primary function.
type PCIGroup struct {
	Addresses []string
}

// VirtualFunction is an SR-IOV virtual function. Parent is the network
// interface name of the physical function and Index the VF number on it.
type VirtualFunction struct {
	Address string
	Parent  string
	Index   int
}

// OtherDevice is a resource without PCI semantics. Its properties are opaque
// to the ledger.
type OtherDevice struct {
	Properties map[string]string
}

func (PCIFunction) Kind() Kind     { return KindPCI }
func (PCIGroup) Kind() Kind        { return KindPCIMultifunction }
func (VirtualFunction) Kind() Kind { return KindSRIOVVF }
func (OtherDevice) Kind() Kind     { return KindOther }

func (PCIFunction) isPayload()     {}
func (PCIGroup) isPayload()        {}
func (VirtualFunction) isPayload() {}
func (OtherDevice) isPayload()     {}

// Descriptor is one claimable hardware unit.
type Descriptor struct {
	// ID is unique within the pool.
	ID string
	// Tags are free form labels.
	Tags []string
	// Payload describes how the hardware is attached to the host.
	Payload Payload
}

// Kind returns the kind of the payload.
func (d Descriptor) Kind() Kind {
	if d.Payload == nil {
		return KindOther
	}

	return d.Payload.Kind()
}

// HasTag reports whether the descriptor carries the given tag.
func (d Descriptor) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// PCIAddresses returns all host PCI addresses the resource occupies.
func (d Descriptor) PCIAddresses() []string {
	switch payload := d.Payload.(type) {
	case PCIFunction:
		return []string{payload.Address}
	case PCIGroup:
		return slices.Clone(payload.Addresses)
	case VirtualFunction:
		return []string{payload.Address}
	case OtherDevice, nil:
		return nil
	default:
		panic(fmt.Sprintf("unhandled resource payload %T", payload))
	}
}
