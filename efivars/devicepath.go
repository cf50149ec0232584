// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package efivars

import (
	"github.com/canonical/go-efilib"
	"github.com/canonical/go-efilib/linux"
)

// Modes for NewDevicePath.
const (
	BootAbbrevNone = linux.FullPath        // Do not abbreviate things
	BootAbbrevHD   = linux.ShortFormPathHD // Abbreviate to the HD node
)

// NewDevicePath generates a UEFI device file path from a given real file path.
// The file must exist on a mounted partition.
func NewDevicePath(filepath string, mode linux.FilePathToDevicePathMode) (efi.DevicePath, error) {
	return linux.FilePathToDevicePath(filepath, mode)
}
