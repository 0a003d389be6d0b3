// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package hostdev prepares claimed host devices before they are passed
// through to a VM.
package hostdev

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/aibor/ezkvm/internal/resource"
	"github.com/vishvananda/netlink"
)

var (
	// ErrVFNotFound is returned if the parent link does not report the
	// requested virtual function.
	ErrVFNotFound = errors.New("virtual function not found")

	// ErrInvalidMAC is returned for MAC addresses that can not be assigned.
	ErrInvalidMAC = errors.New("invalid MAC address")
)

// Netlink is the subset of netlink operations required for device
// preparation. It is satisfied by [*netlink.Handle].
type Netlink interface {
	LinkByName(name string) (netlink.Link, error)
	LinkSetVfHardwareAddr(link netlink.Link, vf int, hwaddr net.HardwareAddr) error
}

// Prepare performs the host side setup required for the given descriptor.
//
// Only SR-IOV virtual functions need setup: if mac is not nil, it is assigned
// to the VF on its parent link. All other kinds are passed through as is.
func Prepare(nl Netlink, desc resource.Descriptor, mac net.HardwareAddr) error {
	switch payload := desc.Payload.(type) {
	case resource.PCIFunction, resource.PCIGroup, resource.OtherDevice:
		return nil
	case resource.VirtualFunction:
		if mac == nil {
			return nil
		}

		return PrepareVF(nl, payload, mac)
	default:
		panic(fmt.Sprintf("unhandled payload type %T", payload))
	}
}

// PrepareVF assigns the given MAC address to the virtual function on its
// parent link.
func PrepareVF(nl Netlink, vf resource.VirtualFunction, mac net.HardwareAddr) error {
	if len(mac) != 6 || mac[0]&0x01 != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMAC, mac)
	}

	link, err := nl.LinkByName(vf.Parent)
	if err != nil {
		return fmt.Errorf("get parent link %s: %w", vf.Parent, err)
	}

	vfs := link.Attrs().Vfs
	if len(vfs) > 0 && !slices.ContainsFunc(vfs, func(info netlink.VfInfo) bool {
		return info.ID == vf.Index
	}) {
		return fmt.Errorf("%w: %s vf %d", ErrVFNotFound, vf.Parent, vf.Index)
	}

	err = nl.LinkSetVfHardwareAddr(link, vf.Index, mac)
	if err != nil {
		return fmt.Errorf("set MAC of %s vf %d: %w", vf.Parent, vf.Index, err)
	}

	return nil
}
