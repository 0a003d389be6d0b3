// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hostdev_test

import (
	"errors"
	"net"
	"testing"

	"github.com/aibor/ezkvm/internal/hostdev"
	"github.com/aibor/ezkvm/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

var errLinkNotFound = errors.New("link not found")

type macCall struct {
	link string
	vf   int
	mac  string
}

type fakeNetlink struct {
	links map[string]netlink.Link
	calls []macCall
	err   error
}

func (f *fakeNetlink) LinkByName(name string) (netlink.Link, error) {
	link, exists := f.links[name]
	if !exists {
		return nil, errLinkNotFound
	}

	return link, nil
}

func (f *fakeNetlink) LinkSetVfHardwareAddr(link netlink.Link, vf int, hwaddr net.HardwareAddr) error {
	if f.err != nil {
		return f.err
	}

	f.calls = append(f.calls, macCall{link.Attrs().Name, vf, hwaddr.String()})

	return nil
}

func newFake(vfs ...int) *fakeNetlink {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = "enp3s0f0"

	for _, id := range vfs {
		attrs.Vfs = append(attrs.Vfs, netlink.VfInfo{ID: id})
	}

	return &fakeNetlink{
		links: map[string]netlink.Link{
			attrs.Name: &netlink.Device{LinkAttrs: attrs},
		},
	}
}

func TestPrepare(t *testing.T) {
	mac := net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	vf := resource.VirtualFunction{
		Address: "0000:03:10.2",
		Parent:  "enp3s0f0",
		Index:   1,
	}

	tests := []struct {
		name     string
		nl       *fakeNetlink
		payload  resource.Payload
		mac      net.HardwareAddr
		expected []macCall
		err      error
	}{
		{
			name:    "pci function",
			nl:      newFake(),
			payload: resource.PCIFunction{Address: "0000:01:00.0"},
			mac:     mac,
		},
		{
			name:    "pci group",
			nl:      newFake(),
			payload: resource.PCIGroup{Addresses: []string{"0000:01:00.0"}},
			mac:     mac,
		},
		{
			name:    "other",
			nl:      newFake(),
			payload: resource.OtherDevice{},
			mac:     mac,
		},
		{
			name:    "vf without mac",
			nl:      newFake(0, 1),
			payload: vf,
		},
		{
			name:     "vf",
			nl:       newFake(0, 1),
			payload:  vf,
			mac:      mac,
			expected: []macCall{{"enp3s0f0", 1, "52:54:00:12:34:56"}},
		},
		{
			name:     "vf list not reported",
			nl:       newFake(),
			payload:  vf,
			mac:      mac,
			expected: []macCall{{"enp3s0f0", 1, "52:54:00:12:34:56"}},
		},
		{
			name:    "vf missing",
			nl:      newFake(0),
			payload: vf,
			mac:     mac,
			err:     hostdev.ErrVFNotFound,
		},
		{
			name:    "multicast mac",
			nl:      newFake(0, 1),
			payload: vf,
			mac:     net.HardwareAddr{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01},
			err:     hostdev.ErrInvalidMAC,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := resource.Descriptor{ID: "d0", Payload: tt.payload}

			err := hostdev.Prepare(tt.nl, desc, tt.mac)
			require.ErrorIs(t, err, tt.err)

			assert.Equal(t, tt.expected, tt.nl.calls)
		})
	}
}

func TestPrepareVFErrors(t *testing.T) {
	mac := net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}

	t.Run("unknown parent", func(t *testing.T) {
		err := hostdev.PrepareVF(newFake(), resource.VirtualFunction{Parent: "eth9"}, mac)
		require.ErrorIs(t, err, errLinkNotFound)
	})

	t.Run("netlink failure", func(t *testing.T) {
		errSet := errors.New("operation not permitted")
		nl := newFake()
		nl.err = errSet

		err := hostdev.PrepareVF(nl, resource.VirtualFunction{Parent: "enp3s0f0"}, mac)
		require.ErrorIs(t, err, errSet)
	})
}
