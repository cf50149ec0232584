// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Runner performs every side effect of an installation. When Simulate is
// set, each mutating operation is logged and reported as successful without
// touching the system. Read-only queries are always performed, so a simulated
// run takes the same decisions as a real one.
type Runner struct {
	Simulate bool

	log     *slog.Logger
	command func(name string, args ...string) error
}

// NewRunner returns a Runner logging to logger, or to the default logger if nil.
func NewRunner(simulate bool, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{Simulate: simulate, log: logger}
	r.command = r.execCommand
	return r
}

// Do runs fn, unless simulating.
func (r *Runner) Do(action string, fn func() error, args ...any) error {
	if r.Simulate {
		r.log.Info("Simulate "+action, args...)
		return nil
	}
	r.log.Debug(action, args...)
	return fn()
}

// MkdirAll creates dir and its parents.
func (r *Runner) MkdirAll(dir string) error {
	return r.Do("creating directory", func() error {
		return appFs.MkdirAll(dir, 0755)
	}, "path", dir)
}

// WriteFile replaces the contents of path with data.
func (r *Runner) WriteFile(path string, data []byte) error {
	return r.Do("writing file", func() error {
		return afero.WriteFile(appFs, path, data, 0644)
	}, "path", path, "contents", string(data))
}

// CopyFile makes dst a byte-identical copy of src. An identical dst is left alone.
func (r *Runner) CopyFile(src, dst string) error {
	return r.Do("copying", func() error {
		updated, err := maybeUpdateFile(dst, src)
		if err != nil {
			return &FileOpError{Op: OpCopy, Src: src, Dst: dst, Err: err}
		}
		if !updated {
			r.log.Debug("already up to date", "path", dst)
		}
		return nil
	}, "src", src, "dst", dst)
}

// GunzipFile writes the gzip decompression of src to dst.
func (r *Runner) GunzipFile(src, dst string) error {
	return r.Do("decompressing", func() error {
		if err := gunzip(src, dst); err != nil {
			appFs.Remove(dst)
			return &FileOpError{Op: OpDecompress, Src: src, Dst: dst, Err: err}
		}
		return nil
	}, "src", src, "dst", dst)
}

func gunzip(src, dst string) error {
	in, err := appFs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()

	out, err := appFs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Command runs an external tool to completion.
func (r *Runner) Command(name string, args ...string) error {
	return r.Do("running command", func() error {
		return r.command(name, args...)
	}, "command", strings.Join(append([]string{name}, args...), " "))
}

func (r *Runner) execCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if len(out) > 0 {
		r.log.Debug("command output", "command", name, "output", string(out))
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// TempDir creates a staging directory and returns it together with a function
// removing it again. When simulating, nothing is created.
func (r *Runner) TempDir(prefix string) (string, func(), error) {
	if r.Simulate {
		dir := filepath.Join(os.TempDir(), prefix)
		r.log.Info("Simulate creating staging directory", "path", dir)
		return dir, func() {}, nil
	}
	dir, err := afero.TempDir(appFs, "", prefix)
	if err != nil {
		return "", nil, fmt.Errorf("cannot create staging directory: %w", err)
	}
	cleanup := func() {
		if err := appFs.RemoveAll(dir); err != nil {
			r.log.Warn("cannot remove staging directory", "path", dir, "error", err)
		}
	}
	return dir, cleanup, nil
}
