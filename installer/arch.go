// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"golang.org/x/sys/unix"
)

// appMachine overrides the machine name reported by uname, for tests
var appMachine = ""

// machine returns the hardware name of the running kernel, as uname -m.
func machine() string {
	if appMachine != "" {
		return appMachine
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Machine[:])
}

// needsUncompressedKernel reports whether the firmware of the machine can
// only load an uncompressed kernel image.
func needsUncompressedKernel(machine string) bool {
	return machine == "arm64" || machine == "aarch64"
}
