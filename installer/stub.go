// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/canonical/kernelstub/efibootmgr"
	"github.com/canonical/kernelstub/efivars"
)

// BootStore is the firmware boot variable store. It is implemented by
// efibootmgr.BootManager.
type BootStore interface {
	// Refresh re-reads the store.
	Refresh() error
	// CurrentEntryIndex returns the index of our entry in RawEntryList, or efibootmgr.NoEntry.
	CurrentEntryIndex() int
	// CurrentOrderPosition returns the boot number of our entry.
	CurrentOrderPosition() int
	// RawEntryList describes the store for logging.
	RawEntryList() []string
	DeleteEntry(orderPosition int) error
	AddEntry(os efibootmgr.OSDescriptor, drive efibootmgr.DriveDescriptor, kernelOptions string) error
}

// entryRestorer is implemented by stores that can undo their last DeleteEntry.
type entryRestorer interface {
	RestoreDeleted() error
}

// Label is the description of the firmware boot entry of the target.
func (t Target) Label() string {
	return strings.TrimSpace(t.OS.PrettyName + " " + t.OS.Version)
}

func (in *Installer) bootDescriptors() (efibootmgr.OSDescriptor, efibootmgr.DriveDescriptor) {
	osd := efibootmgr.OSDescriptor{Label: in.target.Label()}
	if in.unified {
		osd.Loader = "/EFI/Linux/" + in.target.UnifiedImageName(TagCurrent)
	} else {
		gen := in.target.Generation(false)
		osd.Loader = in.target.espPath(filepath.Base(gen.KernelDest))
		osd.Initrd = in.target.espPath(filepath.Base(gen.InitrdDest))
	}
	drive := efibootmgr.DriveDescriptor{
		ESPPath:      in.target.Drive.ESPPath,
		ESPDevice:    in.target.Drive.ESPDevice,
		ESPPartition: in.target.Drive.ESPPartition,
	}
	return osd, drive
}

// SetupStub registers the kernel with the firmware, replacing the entry of a
// previous run. The old entry is deleted before the new one is added, and is
// restored if adding fails.
func (in *Installer) SetupStub(options string) error {
	in.log.Info("Setting up Kernel EFISTUB loader...")
	if in.store == nil {
		return &SyncError{Op: "access", Err: errors.New("no boot variable store")}
	}

	if err := in.store.Refresh(); err != nil {
		return &SyncError{Op: "read", Err: err}
	}
	index := in.store.CurrentEntryIndex()
	position := in.store.CurrentOrderPosition()
	in.log.Debug("NVRAM configuration", "entry", index, "entries", strings.Join(in.store.RawEntryList(), "\n"))

	deleted := false
	if index != efibootmgr.NoEntry {
		in.log.Info("Deleting old boot entry", "variable", efivars.BootVariableName(position))
		err := in.run.Do("deleting boot entry", func() error {
			return in.store.DeleteEntry(position)
		}, "variable", efivars.BootVariableName(position))
		if err != nil {
			return &SyncError{Op: "delete", Err: err}
		}
		deleted = true
	} else {
		in.log.Debug("No old entry found, skipping removal.")
	}

	osd, drive := in.bootDescriptors()
	err := in.run.Do("adding boot entry", func() error {
		return in.store.AddEntry(osd, drive, options)
	}, "label", osd.Label, "loader", osd.Loader, "options", options)
	if err != nil {
		if restorer, ok := in.store.(entryRestorer); ok && deleted {
			if rerr := in.run.Do("restoring boot entry", restorer.RestoreDeleted); rerr != nil {
				in.log.Error("Couldn't restore the old boot entry", "error", rerr)
			}
		}
		return &SyncError{Op: "add", Err: err}
	}

	if err := in.store.Refresh(); err != nil {
		return &SyncError{Op: "read", Err: err}
	}
	in.log.Info("NVRAM configured, new values:\n\n" + strings.Join(in.store.RawEntryList(), "\n") + "\n")
	return nil
}
