// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// ArtifactStatus is the outcome of backing up one artifact.
type ArtifactStatus int

const (
	ArtifactCopied  ArtifactStatus = iota // the backup is in place
	ArtifactMissing                       // there is no previous artifact
	ArtifactDenied                        // the copy failed for another reason
)

func (s ArtifactStatus) String() string {
	switch s {
	case ArtifactCopied:
		return "copied"
	case ArtifactMissing:
		return "missing"
	default:
		return "denied"
	}
}

// BackupResult describes what BackupOld did.
type BackupResult struct {
	Skipped   bool // current and previous kernel are the same file
	Kernel    ArtifactStatus
	Initrd    ArtifactStatus
	KernelErr error
	InitrdErr error
}

// Available reports whether a complete previous generation is on the ESP.
func (r BackupResult) Available() bool {
	return !r.Skipped && r.Kernel == ArtifactCopied && r.Initrd == ArtifactCopied
}

func classifyCopy(err error) ArtifactStatus {
	switch {
	case err == nil:
		return ArtifactCopied
	case errors.Is(err, fs.ErrNotExist):
		return ArtifactMissing
	default:
		return ArtifactDenied
	}
}

// BackupOld keeps the previous kernel generation on the ESP for rollback.
//
// Copy failures are expected, most systems only have one kernel, and are
// reported in the result rather than as an error. The returned error is
// only set when writing the loader entry or the unified image failed.
func (in *Installer) BackupOld(options string, setupLoader bool) (BackupResult, error) {
	in.log.Info("Backing up old kernel")

	gen := in.target.Generation(true)
	oldPath, err := resolveLink(gen.KernelSrc)
	if err != nil {
		oldPath = filepath.Clean(gen.KernelSrc)
	}
	newPath, err := resolveLink(in.target.OS.KernelPath)
	if err != nil {
		newPath = filepath.Clean(in.target.OS.KernelPath)
	}
	if oldPath == newPath {
		in.log.Info("No old kernel found, skipping")
		return BackupResult{Skipped: true}, nil
	}

	var result BackupResult
	result.KernelErr = in.run.CopyFile(gen.KernelSrc, gen.KernelDest)
	result.Kernel = classifyCopy(result.KernelErr)
	if result.KernelErr != nil {
		in.log.Debug("Couldn't back up old kernel. There's probably only one kernel installed.",
			"status", result.Kernel, "error", result.KernelErr)
	}

	result.InitrdErr = in.run.CopyFile(gen.InitrdSrc, gen.InitrdDest)
	result.Initrd = classifyCopy(result.InitrdErr)
	if result.InitrdErr != nil {
		in.log.Debug("Couldn't back up old initrd.img. There's probably only one kernel installed.",
			"status", result.Initrd, "error", result.InitrdErr)
	}

	if !result.Available() {
		return result, nil
	}

	if in.unified {
		if err := in.SetupUnifiedKernel(options, true, false); err != nil {
			return result, err
		}
	}

	if setupLoader {
		err := in.MakeLoaderEntry(LoaderEntry{
			Title:   in.target.OS.PrettyName,
			Linux:   in.target.espPath(filepath.Base(gen.KernelDest)),
			Initrd:  in.target.espPath(filepath.Base(gen.InitrdDest)),
			Options: options,
			Stem:    filepath.Join(in.target.EntryDir(), in.target.OS.Name+"-oldkern"),
		})
		if err != nil {
			return result, err
		}
	}

	return result, nil
}
