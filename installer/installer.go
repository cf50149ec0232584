// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

// Package installer deploys kernels onto the EFI System Partition and
// registers them with the boot manager and the firmware.
package installer

import (
	"fmt"
	"log/slog"
	"strings"
)

// Installer installs the kernels of one Target.
type Installer struct {
	target  Target
	paths   Paths
	run     *Runner
	store   BootStore
	unified bool
	log     *slog.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithPaths overrides DefaultPaths.
func WithPaths(paths Paths) Option {
	return func(in *Installer) { in.paths = paths }
}

// WithUnified makes the installer build unified kernel images.
func WithUnified(unified bool) Option {
	return func(in *Installer) { in.unified = unified }
}

// WithLogger sets the logger, slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Installer) { in.log = logger }
}

// New returns an Installer for target. All side effects go through run. The
// store may be nil if SetupStub is never called.
func New(target Target, run *Runner, store BootStore, opts ...Option) *Installer {
	in := &Installer{
		target: target,
		paths:  DefaultPaths(),
		run:    run,
		store:  store,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Options select the steps of Install.
type Options struct {
	KernelOptions string // full kernel command line, see KernelCommandLine
	SetupLoader   bool   // write systemd-boot loader entries
	Overwrite     bool   // rewrite loader.conf even if it exists
	ManageMode    bool   // the loader is managed externally, leave NVRAM alone
}

// KernelCommandLine assembles the command line booting the root filesystem.
func KernelCommandLine(rootUUID, options string) string {
	return strings.TrimSpace(fmt.Sprintf("root=UUID=%s ro %s", rootUUID, options))
}

// Install runs a complete installation: the current generation, a backup of
// the previous one, the NVRAM entry unless in manage mode, and a copy of the
// running command line. A failure to set up the NVRAM entry is returned after
// the command line was copied.
func (in *Installer) Install(opts Options) error {
	if err := in.SetupKernel(opts.KernelOptions, opts.SetupLoader, opts.Overwrite); err != nil {
		return err
	}

	if _, err := in.BackupOld(opts.KernelOptions, opts.SetupLoader); err != nil {
		in.log.Error("Couldn't back up old kernel. This might just mean you don't have an old kernel installed.", "error", err)
	}

	var stubErr error
	if !opts.ManageMode {
		stubErr = in.SetupStub(opts.KernelOptions)
	}

	if err := in.CopyCmdline(); err != nil {
		in.log.Warn("Couldn't copy the kernel command line", "error", err)
	}

	return stubErr
}
