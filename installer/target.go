// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"path"
	"path/filepath"

	"github.com/canonical/kernelstub/drive"
	"github.com/canonical/kernelstub/opsys"
)

// Generation tags
const (
	TagCurrent  = "current"
	TagPrevious = "previous"
)

// Target is the OS installation being deployed onto an ESP.
type Target struct {
	OS    *opsys.OS
	Drive *drive.Drive
}

// FolderName is the name of the per OS, per root filesystem folder under EFI/.
func (t Target) FolderName() string {
	return t.OS.Name + "-" + t.Drive.RootUUID
}

// Folder is the generation folder holding the split kernel and initrd.
func (t Target) Folder() string {
	return filepath.Join(t.Drive.ESPPath, "EFI", t.FolderName())
}

// LinuxDir holds the unified images of every OS on the ESP.
func (t Target) LinuxDir() string {
	return filepath.Join(t.Drive.ESPPath, "EFI", "Linux")
}

// LoaderDir is the systemd-boot configuration directory.
func (t Target) LoaderDir() string {
	return filepath.Join(t.Drive.ESPPath, "loader")
}

// EntryDir holds the loader entries.
func (t Target) EntryDir() string {
	return filepath.Join(t.LoaderDir(), "entries")
}

// LoaderConf is the shared default pointer file.
func (t Target) LoaderConf() string {
	return filepath.Join(t.LoaderDir(), "loader.conf")
}

// UnifiedImageName is the published file name of a unified image.
func (t Target) UnifiedImageName(tag string) string {
	return t.OS.Name + "-" + tag + "-" + t.Drive.RootUUID + ".efi"
}

// espPath returns the path of a file in the generation folder as seen from the
// root of the ESP.
func (t Target) espPath(name string) string {
	return path.Join("/EFI", t.FolderName(), name)
}

// Generation is one kernel and initrd pair.
type Generation struct {
	Tag        string
	KernelSrc  string
	InitrdSrc  string
	KernelDest string
	InitrdDest string
}

// Generation returns the current or, if old is set, the previous generation.
func (t Target) Generation(old bool) Generation {
	if old {
		return Generation{
			Tag:        TagPrevious,
			KernelSrc:  t.OS.OldKernelPath,
			InitrdSrc:  t.OS.OldInitrdPath,
			KernelDest: filepath.Join(t.Folder(), t.OS.KernelName+"-previous.efi"),
			InitrdDest: filepath.Join(t.Folder(), t.OS.InitrdName+"-previous"),
		}
	}
	return Generation{
		Tag:        TagCurrent,
		KernelSrc:  t.OS.KernelPath,
		InitrdSrc:  t.OS.InitrdPath,
		KernelDest: filepath.Join(t.Folder(), t.OS.KernelName+".efi"),
		InitrdDest: filepath.Join(t.Folder(), t.OS.InitrdName),
	}
}
