// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

// Package opsys describes the installed operating system and its kernels
package opsys

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	version "github.com/knqyf263/go-deb-version"
	"github.com/spf13/afero"
)

// Default names of the kernel and initrd links in the root filesystem.
const (
	KernelName = "vmlinuz"
	InitrdName = "initrd.img"
)

// appFs is our default FS
var appFs afero.Fs = afero.NewOsFs()

var osReleasePaths = []string{"/etc/os-release", "/usr/lib/os-release"}

// OS is the installed operating system.
type OS struct {
	Name       string // technical name, safe for file names
	PrettyName string // as shown to users
	Version    string

	KernelName string
	InitrdName string

	KernelPath    string
	InitrdPath    string
	OldKernelPath string
	OldInitrdPath string
}

// New reads the OS information of the system and locates the kernels in the
// root filesystem mounted at root.
func New(root string) (*OS, error) {
	release, err := readOSRelease(root)
	if err != nil {
		return nil, err
	}

	pretty := release["NAME"]
	if pretty == "" {
		pretty = "Linux"
	}
	o := &OS{
		Name:       CleanName(pretty),
		PrettyName: pretty,
		Version:    release["VERSION_ID"],
		KernelName: KernelName,
		InitrdName: InitrdName,
		KernelPath: filepath.Join(root, KernelName),
		InitrdPath: filepath.Join(root, InitrdName),
	}
	o.SetOldPaths(root)
	return o, nil
}

// SetOldPaths locates the previous kernel and initrd. The vmlinuz.old and
// initrd.img.old links are preferred; without them, the newest kernel in
// /boot older than the current one is used. If there is none, the old paths
// point at the current kernel.
func (o *OS) SetOldPaths(root string) {
	o.OldKernelPath = o.KernelPath + ".old"
	o.OldInitrdPath = o.InitrdPath + ".old"
	if exists(o.OldKernelPath) {
		return
	}

	kernel, initrd, ok := previousFromBoot(filepath.Join(root, "boot"), o.KernelPath)
	if !ok {
		o.OldKernelPath = o.KernelPath
		o.OldInitrdPath = o.InitrdPath
		return
	}
	slog.Debug("found previous kernel in /boot", "kernel", kernel, "initrd", initrd)
	o.OldKernelPath = kernel
	o.OldInitrdPath = initrd
}

func exists(path string) bool {
	_, err := appFs.Stat(path)
	return err == nil
}

func readOSRelease(root string) (map[string]string, error) {
	for _, p := range osReleasePaths {
		f, err := appFs.Open(filepath.Join(root, p))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parseOSRelease(bufio.NewScanner(f))
	}
	return nil, fmt.Errorf("cannot find os-release in %s", root)
}

func parseOSRelease(scanner *bufio.Scanner) (map[string]string, error) {
	out := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		} else {
			value = strings.Trim(value, `'"`)
		}
		out[key] = value
	}
	return out, scanner.Err()
}

var nameReplacer = strings.NewReplacer(
	" ", "_", "~", "-", "!", "", "'", "", "<", "", ">", "",
	":", "", "\"", "", "/", "", "\\", "", "|", "", "?", "", "*", "",
)

// CleanName turns a pretty OS name into one usable as an ESP file name.
func CleanName(pretty string) string {
	return nameReplacer.Replace(pretty)
}

func readLink(path string) (string, bool) {
	reader, ok := appFs.(afero.LinkReader)
	if !ok {
		return "", false
	}
	target, err := reader.ReadlinkIfPossible(path)
	if err != nil {
		if !errors.Is(err, syscall.EINVAL) {
			slog.Debug("cannot read link", "path", path, "error", err)
		}
		return "", false
	}
	return target, true
}

type bootKernel struct {
	path    string
	version version.Version
	raw     string
}

// previousFromBoot returns the newest vmlinuz-<version> in dir older than the
// kernel current links to, along with its initrd.
func previousFromBoot(dir, current string) (kernel, initrd string, ok bool) {
	entries, err := afero.ReadDir(appFs, dir)
	if err != nil {
		return "", "", false
	}

	var currentVersion *version.Version
	if target, ok := readLink(current); ok {
		raw := strings.TrimPrefix(filepath.Base(target), KernelName+"-")
		if v, err := version.NewVersion(raw); err == nil {
			currentVersion = &v
		}
	}

	var kernels []bootKernel
	for _, entry := range entries {
		raw, found := strings.CutPrefix(entry.Name(), KernelName+"-")
		if !found || entry.IsDir() {
			continue
		}
		v, err := version.NewVersion(raw)
		if err != nil {
			slog.Debug("ignoring kernel with unparsable version", "name", entry.Name(), "error", err)
			continue
		}
		kernels = append(kernels, bootKernel{path: filepath.Join(dir, entry.Name()), version: v, raw: raw})
	}
	sort.Slice(kernels, func(i, j int) bool {
		return kernels[i].version.GreaterThan(kernels[j].version)
	})

	for i, k := range kernels {
		if currentVersion != nil && !k.version.LessThan(*currentVersion) {
			continue
		}
		// Without a link to go by, the newest kernel is assumed current.
		if currentVersion == nil && i == 0 {
			continue
		}
		initrd := filepath.Join(dir, InitrdName+"-"+k.raw)
		if !exists(initrd) {
			continue
		}
		return k.path, initrd, true
	}
	return "", "", false
}
