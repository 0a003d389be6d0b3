// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/aibor/ezkvm/internal/resource"
)

// maxFunctions is the number of functions of a single PCI slot.
const maxFunctions = 8

// rootPortID returns the ID of the PCIe root port the device with the given
// index is attached to.
func rootPortID(index int) string {
	return "ezport" + strconv.Itoa(index)
}

// DeviceArgs returns the arguments that pass the given claimed device through
// to the guest. The index must be unique per VM, it is used for device and
// bus IDs.
//
// Each PCI device gets its own PCIe root port, so multi-function devices keep
// their function layout in the guest.
func DeviceArgs(index int, desc resource.Descriptor) ([]Argument, error) {
	switch payload := desc.Payload.(type) {
	case resource.PCIFunction:
		return pciArgs(index, []string{payload.Address}, false), nil
	case resource.PCIGroup:
		if len(payload.Addresses) > maxFunctions {
			return nil, fmt.Errorf("%w: %s has %d", ErrTooManyFunctions,
				desc.ID, len(payload.Addresses))
		}

		return pciArgs(index, payload.Addresses, true), nil
	case resource.VirtualFunction:
		return pciArgs(index, []string{payload.Address}, false), nil
	case resource.OtherDevice:
		return otherArgs(desc.ID, payload)
	default:
		panic(fmt.Sprintf("unhandled payload type %T", payload))
	}
}

func pciArgs(index int, addresses []string, multifunction bool) []Argument {
	port := rootPortID(index)
	slot := strconv.Itoa(index + 1)

	args := []Argument{
		RepeatableArg("device",
			"pcie-root-port",
			"id="+port,
			"bus=pcie.0",
			"chassis="+slot,
			"slot="+slot,
		),
	}

	for fn, addr := range addresses {
		opts := []string{
			"vfio-pci",
			"host=" + addr,
			fmt.Sprintf("id=hostpci%d.%d", index, fn),
			"bus=" + port,
			fmt.Sprintf("addr=0x0.%d", fn),
		}

		if multifunction && fn == 0 {
			opts = append(opts, "multifunction=on")
		}

		args = append(args, RepeatableArg("device", opts...))
	}

	return args
}

func otherArgs(id string, dev resource.OtherDevice) ([]Argument, error) {
	driver, exists := dev.Properties["driver"]
	if !exists || driver == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDriver, id)
	}

	opts := []string{driver, "id=" + id}

	for _, key := range slices.Sorted(maps.Keys(dev.Properties)) {
		if key == "driver" || key == "id" {
			continue
		}

		opts = append(opts, key+"="+dev.Properties[key])
	}

	return []Argument{RepeatableArg("device", opts...)}, nil
}
