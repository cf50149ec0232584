// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package efibootmgr

import (
	"bytes"
	"errors"

	"github.com/canonical/go-efilib"

	"github.com/canonical/kernelstub/efivars"

	"gopkg.in/check.v1"
)

type bootManagerSuite struct {
	efiVarsMixin
}

var _ = check.Suite(&bootManagerSuite{})

const testLabel = "Pop!_OS 24.04"

var (
	testOS = OSDescriptor{
		Label:  testLabel,
		Loader: "/EFI/Pop_OS-1234/vmlinuz.efi",
		Initrd: "/EFI/Pop_OS-1234/initrd.img",
	}
	testDrive = DriveDescriptor{ESPPath: "/boot/efi", ESPDevice: "nvme0n1", ESPPartition: 1}
)

func (s *bootManagerSuite) readLoadOption(c *check.C, name string) *efi.LoadOption {
	data := s.getVar(name)
	c.Assert(data, check.NotNil)
	lo, err := efi.ReadLoadOption(bytes.NewReader(data))
	c.Assert(err, check.IsNil)
	return lo
}

func (s *bootManagerSuite) TestUnsupported(c *check.C) {
	appEFIVars = NoEFIVariables{}

	_, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.Equals, ErrVariablesNotSupported)
	c.Check(err.Error(), check.Equals, "Variables not supported")
}

func (s *bootManagerSuite) TestRefreshForeignEntry(c *check.C) {
	s.setVar("BootOrder", []byte{1, 0}, 123)
	s.setVar("Boot0001", UsbrBootCdrom, 42)
	s.setVar("BootCurrent", []byte{1, 0}, 42)

	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)
	c.Check(bm.bootOrder, check.DeepEquals, []int{1})
	c.Check(bm.entries, check.HasLen, 1)
	c.Check(bm.entries[1].LoadOption.Description, check.Equals, "USBR BOOT CDROM")

	c.Check(bm.CurrentEntryIndex(), check.Equals, NoEntry)
	c.Check(bm.CurrentOrderPosition(), check.Equals, NoEntry)

	raw := bm.RawEntryList()
	c.Assert(raw, check.HasLen, 2)
	c.Check(raw[0], check.Equals, "BootOrder: 0001")
	c.Check(raw[1], check.Matches, `Boot0001\* USBR BOOT CDROM\t.*`)
}

func (s *bootManagerSuite) TestRefreshMissingBootOrder(c *check.C) {
	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)
	c.Check(bm.bootOrder, check.HasLen, 0)
	c.Check(bm.RawEntryList(), check.DeepEquals, []string{"BootOrder: "})
}

func (s *bootManagerSuite) TestAddEntry(c *check.C) {
	s.setVar("BootOrder", []byte{1, 0}, 123)
	s.setVar("Boot0001", UsbrBootCdrom, 42)

	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)

	c.Assert(bm.AddEntry(testOS, testDrive, "root=UUID=1234 ro quiet"), check.IsNil)

	// Boot0000 is the first free slot, and goes first in the boot order.
	c.Check(s.getVar("BootOrder"), check.DeepEquals, []byte{0, 0, 1, 0})
	c.Check(s.vars.devicePaths, check.DeepEquals, []string{"/boot/efi/EFI/Pop_OS-1234/vmlinuz.efi"})

	lo := s.readLoadOption(c, "Boot0000")
	c.Check(lo.Description, check.Equals, testLabel)
	c.Check(lo.Attributes&efi.LoadOptionActive, check.Equals, efi.LoadOptionActive)
	args, err := efivars.LoadOptionArgumentToUTF8(lo.OptionalData)
	c.Assert(err, check.IsNil)
	c.Check(args, check.Equals, `initrd=\EFI\Pop_OS-1234\initrd.img root=UUID=1234 ro quiet`)

	c.Assert(bm.Refresh(), check.IsNil)
	c.Check(bm.CurrentOrderPosition(), check.Equals, 0)
	c.Check(bm.CurrentEntryIndex(), check.Equals, 1)
}

func (s *bootManagerSuite) TestAddEntryUnified(c *check.C) {
	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)

	unified := OSDescriptor{Label: testLabel, Loader: "/EFI/Linux/Pop_OS-current-1234.efi"}
	c.Assert(bm.AddEntry(unified, testDrive, "root=UUID=1234 ro"), check.IsNil)

	lo := s.readLoadOption(c, "Boot0000")
	args, err := efivars.LoadOptionArgumentToUTF8(lo.OptionalData)
	c.Assert(err, check.IsNil)
	c.Check(args, check.Equals, "root=UUID=1234 ro")
	c.Check(s.vars.devicePaths, check.DeepEquals, []string{"/boot/efi/EFI/Linux/Pop_OS-current-1234.efi"})
}

func (s *bootManagerSuite) TestAddEntryBootOrderFailure(c *check.C) {
	s.setVar("BootOrder", []byte{1, 0}, 123)
	s.setVar("Boot0001", UsbrBootCdrom, 42)

	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)

	s.vars.failSet = map[string]error{"BootOrder": errors.New("read-only")}
	err = bm.AddEntry(testOS, testDrive, "ro")
	c.Assert(err, check.ErrorMatches, "cannot update BootOrder: read-only")

	// The variable written for the entry is removed again.
	c.Check(s.getVar("Boot0000"), check.IsNil)
	c.Check(s.getVar("BootOrder"), check.DeepEquals, []byte{1, 0})
	c.Check(bm.entries, check.HasLen, 1)
}

func (s *bootManagerSuite) TestDeleteEntry(c *check.C) {
	s.setVar("BootOrder", []byte{1, 0}, 123)
	s.setVar("Boot0001", UsbrBootCdrom, 42)

	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)
	c.Assert(bm.AddEntry(testOS, testDrive, "ro"), check.IsNil)
	c.Assert(bm.Refresh(), check.IsNil)

	pos := bm.CurrentOrderPosition()
	c.Assert(pos, check.Equals, 0)
	c.Assert(bm.DeleteEntry(pos), check.IsNil)

	c.Check(s.getVar("Boot0000"), check.IsNil)
	c.Check(s.getVar("BootOrder"), check.DeepEquals, []byte{1, 0})

	c.Assert(bm.Refresh(), check.IsNil)
	c.Check(bm.CurrentEntryIndex(), check.Equals, NoEntry)
}

func (s *bootManagerSuite) TestDeleteEntryNonExisting(c *check.C) {
	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)
	c.Check(bm.DeleteEntry(5), check.ErrorMatches, "Tried deleting a non-existing variable Boot0005")
}

func (s *bootManagerSuite) TestRestoreDeleted(c *check.C) {
	s.setVar("BootOrder", []byte{1, 0}, 123)
	s.setVar("Boot0001", UsbrBootCdrom, 42)

	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)
	c.Assert(bm.AddEntry(testOS, testDrive, "ro"), check.IsNil)
	before := s.getVar("Boot0000")

	c.Assert(bm.DeleteEntry(0), check.IsNil)
	c.Check(s.getVar("Boot0000"), check.IsNil)

	c.Assert(bm.RestoreDeleted(), check.IsNil)
	c.Check(s.getVar("Boot0000"), check.DeepEquals, before)
	c.Check(s.getVar("BootOrder"), check.DeepEquals, []byte{0, 0, 1, 0})

	// Nothing left to restore
	c.Check(bm.RestoreDeleted(), check.IsNil)
}

func (s *bootManagerSuite) TestFindEntryPrefersBootOrder(c *check.C) {
	bm, err := NewBootManagerFromSystem(testLabel)
	c.Assert(err, check.IsNil)
	c.Assert(bm.AddEntry(testOS, testDrive, "ro"), check.IsNil)
	c.Assert(bm.AddEntry(testOS, testDrive, "ro"), check.IsNil)

	// Boot0001 was prepended last, so it is first in the boot order.
	c.Assert(bm.Refresh(), check.IsNil)
	c.Check(bm.CurrentOrderPosition(), check.Equals, 1)
	c.Check(bm.CurrentEntryIndex(), check.Equals, 2)
}
