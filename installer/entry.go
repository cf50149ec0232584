// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package installer

import (
	"fmt"
)

// LoaderEntry is a systemd-boot entry. Linux and Initrd are relative to the
// root of the ESP.
type LoaderEntry struct {
	Title   string
	Linux   string
	Initrd  string
	Options string
	Stem    string // file name without the .conf extension
}

// Bytes returns the contents of the entry file. Options must not contain a
// line break, nothing is escaped.
func (e LoaderEntry) Bytes() []byte {
	return []byte(fmt.Sprintf("title %s\nlinux %s\ninitrd %s\noptions %s\n", e.Title, e.Linux, e.Initrd, e.Options))
}

// MakeLoaderEntry writes entry to its .conf file, replacing any existing one.
func (in *Installer) MakeLoaderEntry(entry LoaderEntry) error {
	in.log.Info("Making entry file", "title", entry.Title)
	if err := in.run.MkdirAll(in.target.EntryDir()); err != nil {
		return fmt.Errorf("cannot create entries directory: %w", err)
	}
	if err := in.run.WriteFile(entry.Stem+".conf", entry.Bytes()); err != nil {
		return fmt.Errorf("cannot write loader entry: %w", err)
	}
	in.log.Debug("Entry created", "path", entry.Stem+".conf")
	return nil
}

// writeLoaderDefault points loader.conf at value. An existing loader.conf is
// only replaced if overwrite is set, so a default chosen by the user among
// several installations survives.
func (in *Installer) writeLoaderDefault(overwrite bool, value string) error {
	conf := in.target.LoaderConf()
	if !overwrite && !exists(conf) {
		overwrite = true
	}
	if !overwrite {
		in.log.Debug("Leaving existing loader.conf alone", "path", conf)
		return nil
	}

	if err := in.run.MkdirAll(in.target.LoaderDir()); err != nil {
		return fmt.Errorf("cannot create loader directory: %w", err)
	}
	if err := in.run.WriteFile(conf, []byte("default "+value+"\n")); err != nil {
		return fmt.Errorf("cannot write loader.conf: %w", err)
	}
	return nil
}
