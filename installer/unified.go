// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"fmt"
	"path/filepath"
)

// unifiedSection is a PE section of a unified kernel image. The virtual
// addresses are expected by the systemd stub and must not overlap.
type unifiedSection struct {
	name string
	vma  uint64
}

var unifiedSections = []unifiedSection{
	{".osrel", 0x20000},
	{".cmdline", 0x30000},
	{".linux", 0x2000000},
	{".initrd", 0x3000000},
}

// mergeArgs returns the arguments of the section merge tool, files maps
// section names to their contents.
func mergeArgs(files map[string]string, stub, output string) []string {
	var args []string
	for _, s := range unifiedSections {
		args = append(args,
			"--add-section", fmt.Sprintf("%s=%s", s.name, files[s.name]),
			"--change-section-vma", fmt.Sprintf("%s=0x%x", s.name, s.vma))
	}
	return append(args, stub, output)
}

func (in *Installer) signingAvailable() bool {
	return exists(in.paths.SigningCert) && exists(in.paths.SigningKey)
}

// SetupUnifiedKernel builds the unified image of the current or, if old is
// set, the previous generation and publishes it to EFI/Linux. The image is
// signed when both the signing certificate and key exist; a failure to sign
// publishes nothing.
//
// For the current generation, loader.conf is pointed at the image subject to
// overwrite.
func (in *Installer) SetupUnifiedKernel(options string, old, overwrite bool) error {
	gen := in.target.Generation(old)

	staging, cleanup, err := in.run.TempDir("kernelstub-" + gen.Tag + "-")
	if err != nil {
		return err
	}
	defer cleanup()

	cmdline := filepath.Join(staging, "cmdline")
	if err := in.run.WriteFile(cmdline, []byte(options)); err != nil {
		return fmt.Errorf("cannot write command line: %w", err)
	}

	in.log.Info("Creating unified Linux EFI executable", "generation", gen.Tag)
	unsigned := filepath.Join(staging, "linux-unsigned.efi")
	files := map[string]string{
		".osrel":   in.paths.OSRelease,
		".cmdline": cmdline,
		".linux":   gen.KernelSrc,
		".initrd":  gen.InitrdSrc,
	}
	if err := in.run.Command(in.paths.MergeTool, mergeArgs(files, in.paths.Stub, unsigned)...); err != nil {
		return err
	}

	image := unsigned
	if in.signingAvailable() {
		in.log.Info("Signing unified Linux EFI executable", "generation", gen.Tag)
		signed := filepath.Join(staging, "signed.efi")
		err := in.run.Command(in.paths.SignTool,
			"--cert", in.paths.SigningCert,
			"--key", in.paths.SigningKey,
			"--output", signed,
			unsigned)
		if err != nil {
			return err
		}
		image = signed
	}

	in.log.Info("Copying unified Linux EFI executable to ESP", "generation", gen.Tag)
	if err := in.run.MkdirAll(in.target.LinuxDir()); err != nil {
		return err
	}
	name := in.target.UnifiedImageName(gen.Tag)
	if err := in.run.CopyFile(image, filepath.Join(in.target.LinuxDir(), name)); err != nil {
		return err
	}

	if old {
		return nil
	}
	return in.writeLoaderDefault(overwrite, name)
}
