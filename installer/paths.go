// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

// Paths holds the well-known files and tools used while installing.
type Paths struct {
	SigningCert string // certificate used to sign unified images
	SigningKey  string // key matching SigningCert
	Stub        string // systemd EFI stub the unified image is built on
	OSRelease   string // embedded as the .osrel section
	Cmdline     string // command line of the running kernel
	MergeTool   string // objcopy compatible section merge tool
	SignTool    string // sbsign compatible signing tool
}

// DefaultPaths returns the paths used on a standard installation.
func DefaultPaths() Paths {
	return Paths{
		SigningCert: "/etc/kernelstub/mok.crt",
		SigningKey:  "/etc/kernelstub/mok.key",
		Stub:        "/usr/lib/systemd/boot/efi/linuxx64.efi.stub",
		OSRelease:   "/usr/lib/os-release",
		Cmdline:     "/proc/cmdline",
		MergeTool:   "objcopy",
		SignTool:    "sbsign",
	}
}
