// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

// Package drive locates the root filesystem and the EFI System Partition
package drive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

const uuidDir = "/dev/disk/by-uuid"

var (
	// appFs is our default FS
	appFs afero.Fs = afero.NewOsFs()

	// statDevice returns the device number of the filesystem containing path
	statDevice = func(path string) (uint64, error) {
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err != nil {
			return 0, &os.PathError{Op: "stat", Path: path, Err: err}
		}
		return uint64(st.Dev), nil
	}

	// readLink behaves like os.Readlink()
	readLink = os.Readlink
)

// Drive describes the block devices kernelstub installs to.
type Drive struct {
	RootPath     string
	ESPPath      string
	RootDevice   string // block device name of the root filesystem, like nvme0n1p2
	RootUUID     string
	ESPDevice    string // disk holding the ESP, like nvme0n1
	ESPPartition int    // partition number of the ESP on ESPDevice
}

// New finds the devices backing the root filesystem mounted at rootPath and
// the ESP mounted at espPath.
func New(rootPath, espPath string) (*Drive, error) {
	d := &Drive{RootPath: rootPath, ESPPath: espPath}

	root, err := blockDevice(rootPath)
	if err != nil {
		return nil, fmt.Errorf("cannot find root filesystem device: %w", err)
	}
	d.RootDevice = root.name
	d.RootUUID, err = uuidOf(root.name)
	if err != nil {
		return nil, fmt.Errorf("cannot find UUID of %s: %w", root.name, err)
	}

	esp, err := blockDevice(espPath)
	if err != nil {
		return nil, fmt.Errorf("cannot find ESP device: %w", err)
	}
	if esp.partition == 0 {
		return nil, fmt.Errorf("ESP %s is not on a partition (%s)", espPath, esp.name)
	}
	d.ESPDevice = esp.disk
	d.ESPPartition = esp.partition

	return d, nil
}

type device struct {
	name      string // nvme0n1p1
	disk      string // nvme0n1
	partition int    // 1, or 0 for a whole disk
}

// blockDevice resolves the block device of the filesystem containing path
// through /sys/dev/block.
func blockDevice(path string) (device, error) {
	dev, err := statDevice(path)
	if err != nil {
		return device{}, err
	}
	sysPath := fmt.Sprintf("/sys/dev/block/%d:%d", unix.Major(dev), unix.Minor(dev))
	target, err := readLink(sysPath)
	if err != nil {
		return device{}, err
	}

	d := device{
		name: filepath.Base(target),
		disk: filepath.Base(filepath.Dir(target)),
	}
	data, err := afero.ReadFile(appFs, filepath.Join(sysPath, "partition"))
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.disk = d.name
	case err != nil:
		return device{}, err
	default:
		d.partition, err = strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return device{}, fmt.Errorf("invalid partition number for %s: %w", d.name, err)
		}
	}
	return d, nil
}

// uuidOf returns the filesystem UUID of the block device name.
func uuidOf(name string) (string, error) {
	entries, err := afero.ReadDir(appFs, uuidDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		target, err := readLink(filepath.Join(uuidDir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == name {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("no entry in %s", uuidDir)
}
