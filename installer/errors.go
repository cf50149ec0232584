// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"fmt"
)

// Exit statuses for fatal deployment failures.
const (
	ExitKernelFailed = 170
	ExitInitrdFailed = 171
)

// FileOp is the kind of file operation that failed.
type FileOp string

const (
	OpCopy       FileOp = "copy"
	OpDecompress FileOp = "decompress"
)

// FileOpError reports a failed copy or decompression.
type FileOpError struct {
	Op  FileOp
	Src string
	Dst string
	Err error
}

func (e *FileOpError) Error() string {
	return fmt.Sprintf("Could not %s %s to %s: %v", e.Op, e.Src, e.Dst, e.Err)
}

func (e *FileOpError) Unwrap() error { return e.Err }

// Artifact names a boot artifact placed on the ESP.
type Artifact string

const (
	ArtifactKernel Artifact = "kernel"
	ArtifactInitrd Artifact = "initrd"
)

// DeployError is returned when the current kernel or initrd could not be
// placed on the ESP. The system cannot boot through kernelstub without them,
// so callers should stop and exit with ExitStatus.
type DeployError struct {
	Artifact Artifact
	Err      error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("cannot install the %s onto the ESP: %v", e.Artifact, e.Err)
}

func (e *DeployError) Unwrap() error { return e.Err }

// ExitStatus returns the process exit status for the failed artifact.
func (e *DeployError) ExitStatus() int {
	if e.Artifact == ArtifactInitrd {
		return ExitInitrdFailed
	}
	return ExitKernelFailed
}

// SyncError is returned when the firmware boot entries could not be updated.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("cannot %s NVRAM boot entry: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
