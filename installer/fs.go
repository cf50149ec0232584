// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
)

// appFs is our default FS
var appFs afero.Fs = afero.NewOsFs()

// maybeUpdateFile copies src to dest if they are different
// It returns true if the destination file was successfully updated. If the return value
// is false, the state of the destination is unspecified. It might not exist, exist
// with partial data or exist with old data, amongst others.
func maybeUpdateFile(dst string, src string) (bool, error) {
	srcFile, err := appFs.Open(src)
	if err != nil {
		return false, fmt.Errorf("Could not open source file: %w", err)
	}
	defer srcFile.Close()

	if needUpdate, err := needUpdateFile(dst, src, srcFile); !needUpdate {
		return false, err
	}

	dstFileWriter, err := appFs.Create(dst)
	if err != nil {
		return false, fmt.Errorf("Could not open %s for writing: %w", dst, err)
	}

	if _, err := io.Copy(dstFileWriter, srcFile); err != nil {
		dstFileWriter.Close()
		appFs.Remove(dst)
		return false, fmt.Errorf("Could not copy %s to %s: %w", src, dst, err)
	}
	if err := dstFileWriter.Close(); err != nil {
		appFs.Remove(dst)
		return false, fmt.Errorf("Could not write %s: %w", dst, err)
	}
	return true, nil
}

func needUpdateFile(dst string, src string, srcFile io.ReadSeeker) (bool, error) {
	// To keep things simple, but not have the files in memory, just hash them
	dstHash := sha256.New()
	srcHash := sha256.New()

	dstFile, err := appFs.Open(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("Could not open destination file: %w", err)
	}

	defer dstFile.Close()

	if _, err := io.Copy(dstHash, dstFile); err != nil {
		return false, fmt.Errorf("Could not hash destination file %s: %w", dst, err)
	}
	if _, err := io.Copy(srcHash, srcFile); err != nil {
		return false, fmt.Errorf("Could not hash source file %s: %w", src, err)
	}
	if bytes.Equal(dstHash.Sum(nil), srcHash.Sum(nil)) {
		return false, nil
	}

	if _, err := srcFile.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("Could not seek in source file %s: %w", src, err)
	}

	return true, nil
}

// maxLinks bounds the symbolic links followed while resolving one path.
const maxLinks = 255

// resolveLink returns path with every symbolic link in it resolved, in the
// directories as well as the final component. Components that don't exist
// are kept as they are.
func resolveLink(path string) (string, error) {
	path = filepath.Clean(path)

	reader, ok := appFs.(afero.LinkReader)
	if !ok {
		return path, nil
	}

	resolved := ""
	if filepath.IsAbs(path) {
		resolved = "/"
	}
	remaining := strings.Split(path, "/")
	links := 0

	for len(remaining) > 0 {
		name := remaining[0]
		remaining = remaining[1:]

		switch name {
		case "", ".":
			continue
		case "..":
			if resolved == "" || filepath.Base(resolved) == ".." {
				resolved = filepath.Join(resolved, "..")
			} else {
				resolved = filepath.Dir(resolved)
			}
			continue
		}

		next := filepath.Join(resolved, name)
		target, err := reader.ReadlinkIfPossible(next)
		switch {
		case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.ENOTDIR),
			errors.Is(err, os.ErrNotExist), errors.Is(err, afero.ErrNoReadlink):
			resolved = next
			continue
		case err != nil:
			return "", err
		}

		links++
		if links > maxLinks {
			return "", fmt.Errorf("too many levels of symbolic links resolving %s", path)
		}
		if filepath.IsAbs(target) {
			resolved = "/"
		}
		remaining = append(strings.Split(target, "/"), remaining...)
	}

	return filepath.Clean(resolved), nil
}

func exists(path string) bool {
	_, err := appFs.Stat(path)
	return err == nil
}
