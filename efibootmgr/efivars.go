// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package efibootmgr

import (
	"context"

	"github.com/canonical/go-efilib"
	"github.com/canonical/go-efilib/linux"

	"github.com/canonical/kernelstub/efivars"
)

// EFIVariables is the firmware variable store the BootManager works on.
type EFIVariables interface {
	ListVariables() ([]efi.VariableDescriptor, error)
	GetVariable(guid efi.GUID, name string) (data []byte, attrs efi.VariableAttributes, err error)
	// SetVariable with empty data deletes the variable.
	SetVariable(guid efi.GUID, name string, data []byte, attrs efi.VariableAttributes) error
	// NewDevicePath describes a file on a mounted partition as firmware sees it.
	NewDevicePath(filepath string, mode linux.FilePathToDevicePathMode) (efi.DevicePath, error)
}

// firmwareVariables talks to efivarfs through go-efilib.
type firmwareVariables struct {
	ctx context.Context
}

func (v firmwareVariables) ListVariables() ([]efi.VariableDescriptor, error) {
	return efi.ListVariables(v.ctx)
}

func (v firmwareVariables) GetVariable(guid efi.GUID, name string) ([]byte, efi.VariableAttributes, error) {
	return efi.ReadVariable(v.ctx, name, guid)
}

func (v firmwareVariables) SetVariable(guid efi.GUID, name string, data []byte, attrs efi.VariableAttributes) error {
	return efi.WriteVariable(v.ctx, name, guid, attrs, data)
}

func (firmwareVariables) NewDevicePath(filepath string, mode linux.FilePathToDevicePathMode) (efi.DevicePath, error) {
	return efivars.NewDevicePath(filepath, mode)
}

// appEFIVars is replaced by tests
var appEFIVars EFIVariables = firmwareVariables{ctx: efi.DefaultVarContext}

// storeAvailable reports whether the variable store can be listed at all.
func storeAvailable() bool {
	_, err := appEFIVars.ListVariables()
	return err == nil
}

// globalNames lists the names of the EFI global variables.
func globalNames() ([]string, error) {
	descs, err := appEFIVars.ListVariables()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, desc := range descs {
		if desc.GUID == efi.GlobalVariable {
			names = append(names, desc.Name)
		}
	}
	return names, nil
}

func readGlobal(name string) ([]byte, efi.VariableAttributes, error) {
	return appEFIVars.GetVariable(efi.GlobalVariable, name)
}

func writeGlobal(name string, data []byte, attrs efi.VariableAttributes) error {
	return appEFIVars.SetVariable(efi.GlobalVariable, name, data, attrs)
}

// deleteGlobal removes a global variable. Its attributes must be passed
// along, so it has to exist.
func deleteGlobal(name string) error {
	_, attrs, err := readGlobal(name)
	if err != nil {
		return err
	}
	return writeGlobal(name, nil, attrs)
}
