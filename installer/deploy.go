// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"fmt"
	"path/filepath"
)

// SetupKernel places the current kernel and initrd in the generation folder.
//
// Failing to install either returns a *DeployError. With setupLoader, the
// "<os>-current" loader entry is written. loader.conf is pointed at it subject
// to overwrite, unless the unified image already claimed the default.
func (in *Installer) SetupKernel(options string, setupLoader, overwrite bool) error {
	gen := in.target.Generation(false)

	in.log.Info("Copying Kernel into ESP")
	if err := in.run.MkdirAll(in.target.Folder()); err != nil {
		return &DeployError{Artifact: ArtifactKernel, Err: err}
	}
	in.log.Debug("kernel being copied", "dst", gen.KernelDest)

	var err error
	if m := machine(); needsUncompressedKernel(m) {
		in.log.Debug("decompressing kernel for firmware", "machine", m)
		err = in.run.GunzipFile(gen.KernelSrc, gen.KernelDest)
	} else {
		err = in.run.CopyFile(gen.KernelSrc, gen.KernelDest)
	}
	if err != nil {
		in.log.Error("Couldn't copy the kernel onto the ESP! This is a critical error and we cannot continue.", "error", err)
		return &DeployError{Artifact: ArtifactKernel, Err: err}
	}

	in.log.Info("Copying initrd.img into ESP")
	if err := in.run.CopyFile(gen.InitrdSrc, gen.InitrdDest); err != nil {
		in.log.Error("Couldn't copy the initrd onto the ESP! This is a critical error and we cannot continue.", "error", err)
		return &DeployError{Artifact: ArtifactInitrd, Err: err}
	}
	in.log.Debug("Copy complete")

	if in.unified {
		if err := in.SetupUnifiedKernel(options, false, overwrite); err != nil {
			return fmt.Errorf("cannot set up unified kernel image: %w", err)
		}
	}

	if !setupLoader {
		return nil
	}

	name := in.target.OS.Name + "-" + TagCurrent
	if !in.unified {
		in.log.Info("Setting up loader.conf configuration")
		if err := in.writeLoaderDefault(overwrite, name); err != nil {
			return err
		}
	}
	return in.MakeLoaderEntry(LoaderEntry{
		Title:   in.target.OS.PrettyName,
		Linux:   in.target.espPath(filepath.Base(gen.KernelDest)),
		Initrd:  in.target.espPath(filepath.Base(gen.InitrdDest)),
		Options: options,
		Stem:    filepath.Join(in.target.EntryDir(), name),
	})
}

// CopyCmdline saves the command line of the running kernel in the generation
// folder, for diagnostics.
func (in *Installer) CopyCmdline() error {
	return in.run.CopyFile(in.paths.Cmdline, filepath.Join(in.target.Folder(), "cmdline"))
}
