// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

// Package efibootmgr manages the firmware boot device selection menu
package efibootmgr

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/canonical/go-efilib"

	"github.com/canonical/kernelstub/efivars"
)

// NoEntry is returned by CurrentEntryIndex and CurrentOrderPosition when no
// boot entry is registered for the operating system.
const NoEntry = -1

// ErrVariablesNotSupported is returned when the EFI variable store cannot be accessed.
var ErrVariablesNotSupported = errors.New("Variables not supported")

// BootEntryVariable defines a boot entry variable
type BootEntryVariable struct {
	BootNumber int                    // number of the Boot variable, for example, for Boot0004 this is 4
	Data       []byte                 // the data of the variable
	Attributes efi.VariableAttributes // any attributes set on the variable
	LoadOption *efi.LoadOption        // the data of the variable parsed as a load option, nil if invalid
}

// OSDescriptor describes the boot image registered for an operating system.
type OSDescriptor struct {
	Label  string // shown in the firmware boot menu, identifies the entry on later runs
	Loader string // ESP relative path of the EFI image, slash separated
	Initrd string // ESP relative path of the initrd, empty for unified images
}

// DriveDescriptor locates the ESP holding the boot image.
type DriveDescriptor struct {
	ESPPath      string
	ESPDevice    string
	ESPPartition int
}

type deletedEntry struct {
	entry    BootEntryVariable
	position int // index in the boot order, -1 if it was not in it
}

// BootManager manages the boot device selection menu entries (Boot0000...BootFFFF)
// for the operating system identified by label.
type BootManager struct {
	label          string
	entries        map[int]BootEntryVariable // The Boot<number> variables
	bootOrder      []int                     // The BootOrder variable, parsed
	bootOrderAttrs efi.VariableAttributes    // The attributes of BootOrder variable
	deleted        *deletedEntry             // The last entry removed by DeleteEntry
}

// NewBootManager returns a BootManager for entries labelled label. Call
// Refresh before querying it.
func NewBootManager(label string) *BootManager {
	return &BootManager{
		label:   label,
		entries: make(map[int]BootEntryVariable),
	}
}

// NewBootManagerFromSystem returns a new BootManager object, initialized with the system state.
func NewBootManagerFromSystem(label string) (*BootManager, error) {
	bm := NewBootManager(label)
	if err := bm.Refresh(); err != nil {
		return nil, err
	}
	return bm, nil
}

// Refresh re-reads BootOrder and all boot entries from the firmware.
func (bm *BootManager) Refresh() error {
	if !storeAvailable() {
		return ErrVariablesNotSupported
	}

	bootOrderBytes, bootOrderAttrs, err := readGlobal("BootOrder")
	switch {
	case errors.Is(err, efi.ErrVarNotExist):
		bootOrderBytes = nil
		bootOrderAttrs = efi.AttributeNonVolatile | efi.AttributeBootserviceAccess | efi.AttributeRuntimeAccess
	case err != nil:
		return fmt.Errorf("cannot read BootOrder variable: %w", err)
	}
	bm.bootOrder = efivars.DecodeBootOrder(bootOrderBytes)
	bm.bootOrderAttrs = bootOrderAttrs

	names, err := globalNames()
	if err != nil {
		return fmt.Errorf("cannot obtain list of global variables: %w", err)
	}
	entries := make(map[int]BootEntryVariable)
	for _, name := range names {
		bootNum, ok := efivars.ParseBootVariableName(name)
		if !ok {
			continue
		}
		entry := BootEntryVariable{BootNumber: bootNum}
		entry.Data, entry.Attributes, err = readGlobal(name)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", name, err)
		}
		entry.LoadOption, err = efi.ReadLoadOption(bytes.NewReader(entry.Data))
		if err != nil {
			slog.Debug("invalid boot entry", "variable", name, "error", err)
			entry.LoadOption = nil
		}
		entries[bootNum] = entry
	}
	bm.entries = entries

	return nil
}

func (bm *BootManager) sortedEntries() []int {
	nums := make([]int, 0, len(bm.entries))
	for num := range bm.entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// findEntry returns the boot number of the entry labelled for our OS. If there
// are several, the one earliest in the boot order wins.
func (bm *BootManager) findEntry() int {
	matches := func(num int) bool {
		entry, ok := bm.entries[num]
		return ok && entry.LoadOption != nil && entry.LoadOption.Description == bm.label
	}
	for _, num := range bm.bootOrder {
		if matches(num) {
			return num
		}
	}
	for _, num := range bm.sortedEntries() {
		if matches(num) {
			return num
		}
	}
	return NoEntry
}

// RawEntryList returns a listing of the boot configuration for diagnostics.
// The first line is the boot order, followed by one line per entry in
// ascending boot number order.
func (bm *BootManager) RawEntryList() []string {
	order := make([]string, 0, len(bm.bootOrder))
	for _, num := range bm.bootOrder {
		order = append(order, fmt.Sprintf("%04X", num))
	}
	lines := []string{"BootOrder: " + strings.Join(order, ",")}

	for _, num := range bm.sortedEntries() {
		entry := bm.entries[num]
		if entry.LoadOption == nil {
			lines = append(lines, efivars.BootVariableName(num)+"  <invalid load option>")
			continue
		}
		active := " "
		if entry.LoadOption.Attributes&efi.LoadOptionActive != 0 {
			active = "*"
		}
		lines = append(lines, fmt.Sprintf("%s%s %s\t%s", efivars.BootVariableName(num), active,
			entry.LoadOption.Description, entry.LoadOption.FilePath))
	}
	return lines
}

// CurrentEntryIndex returns the line of RawEntryList describing the entry
// for our OS, or NoEntry.
func (bm *BootManager) CurrentEntryIndex() int {
	bootNum := bm.findEntry()
	if bootNum == NoEntry {
		return NoEntry
	}
	for i, num := range bm.sortedEntries() {
		if num == bootNum {
			return i + 1
		}
	}
	return NoEntry
}

// CurrentOrderPosition returns the boot number of the entry for our OS, or NoEntry.
func (bm *BootManager) CurrentOrderPosition() int {
	return bm.findEntry()
}

// NextFreeEntry returns the number of the next free Boot variable.
func (bm *BootManager) NextFreeEntry() (int, error) {
	for i := 0; i < efivars.MaxBootEntries; i++ {
		if _, ok := bm.entries[i]; !ok {
			return i, nil
		}
	}

	return -1, fmt.Errorf("Maximum number of boot entries exceeded")
}

func efiPath(path string) string {
	return strings.ReplaceAll(path, "/", `\`)
}

// newLoadOption builds the serialized load option for an entry. It does not
// touch any variable.
func (bm *BootManager) newLoadOption(os OSDescriptor, drive DriveDescriptor, kernelOptions string) ([]byte, error) {
	if os.Loader == "" {
		return nil, errors.New("no loader path for boot entry")
	}
	loaderPath := filepath.Join(drive.ESPPath, filepath.FromSlash(strings.TrimPrefix(os.Loader, "/")))
	dp, err := appEFIVars.NewDevicePath(loaderPath, efivars.BootAbbrevHD)
	if err != nil {
		return nil, fmt.Errorf("cannot create device path for %s: %w", loaderPath, err)
	}

	options := kernelOptions
	if os.Initrd != "" {
		options = strings.TrimSpace("initrd=" + efiPath(os.Initrd) + " " + kernelOptions)
	}
	optionalData, err := efivars.NewLoadOptionArgumentFromUTF8(options)
	if err != nil {
		return nil, err
	}

	loadOption := &efi.LoadOption{
		Attributes:   efi.LoadOptionActive,
		Description:  os.Label,
		FilePath:     dp,
		OptionalData: optionalData,
	}
	var w bytes.Buffer
	if err := loadOption.Write(&w); err != nil {
		return nil, fmt.Errorf("cannot encode load option: %w", err)
	}
	return w.Bytes(), nil
}

// AddEntry creates a new boot entry for the OS and places it first in the
// boot order. If the boot order cannot be committed, the new variable is
// removed again.
func (bm *BootManager) AddEntry(os OSDescriptor, drive DriveDescriptor, kernelOptions string) error {
	data, err := bm.newLoadOption(os, drive, kernelOptions)
	if err != nil {
		return err
	}

	bootNext, err := bm.NextFreeEntry()
	if err != nil {
		return err
	}
	variable := efivars.BootVariableName(bootNext)
	attrs := efi.AttributeNonVolatile | efi.AttributeBootserviceAccess | efi.AttributeRuntimeAccess

	if err := writeGlobal(variable, data, attrs); err != nil {
		return fmt.Errorf("cannot write %s: %w", variable, err)
	}
	loadOption, _ := efi.ReadLoadOption(bytes.NewReader(data))
	bm.entries[bootNext] = BootEntryVariable{
		BootNumber: bootNext,
		Data:       data,
		Attributes: attrs,
		LoadOption: loadOption,
	}

	if err := bm.PrependAndSetBootOrder([]int{bootNext}); err != nil {
		if delErr := deleteGlobal(variable); delErr != nil {
			slog.Error("cannot remove boot entry after failed boot order update", "variable", variable, "error", delErr)
		}
		delete(bm.entries, bootNext)
		return fmt.Errorf("cannot update BootOrder: %w", err)
	}

	bm.deleted = nil
	return nil
}

// DeleteEntry deletes an entry and commits the boot order without it.
//
// The removed entry is remembered, so that RestoreDeleted can put it back if
// registering its replacement fails.
func (bm *BootManager) DeleteEntry(bootNum int) error {
	variable := efivars.BootVariableName(bootNum)
	entry, ok := bm.entries[bootNum]
	if !ok {
		return fmt.Errorf("Tried deleting a non-existing variable %s", variable)
	}

	if err := deleteGlobal(variable); err != nil {
		return err
	}
	delete(bm.entries, bootNum)

	position := -1
	var newOrder []int
	for i, orderEntry := range bm.bootOrder {
		if orderEntry == bootNum {
			if position < 0 {
				position = i
			}
			continue
		}
		newOrder = append(newOrder, orderEntry)
	}

	if err := bm.setBootOrder(newOrder); err != nil {
		// Put the variable back so the entry is not lost from the menu.
		if setErr := writeGlobal(variable, entry.Data, entry.Attributes); setErr == nil {
			bm.entries[bootNum] = entry
		}
		return fmt.Errorf("cannot update BootOrder: %w", err)
	}

	bm.deleted = &deletedEntry{entry: entry, position: position}
	return nil
}

// RestoreDeleted writes back the entry removed by the last DeleteEntry call,
// at its previous place in the boot order.
func (bm *BootManager) RestoreDeleted() error {
	if bm.deleted == nil {
		return nil
	}
	entry := bm.deleted.entry
	variable := efivars.BootVariableName(entry.BootNumber)
	if err := writeGlobal(variable, entry.Data, entry.Attributes); err != nil {
		return fmt.Errorf("cannot restore %s: %w", variable, err)
	}
	bm.entries[entry.BootNumber] = entry

	order := append([]int(nil), bm.bootOrder...)
	if pos := bm.deleted.position; pos >= 0 {
		if pos > len(order) {
			pos = len(order)
		}
		order = append(order[:pos], append([]int{entry.BootNumber}, order[pos:]...)...)
	}
	if err := bm.setBootOrder(order); err != nil {
		return err
	}
	bm.deleted = nil
	return nil
}

// PrependAndSetBootOrder commits a new boot order or returns an error.
//
// The boot order specified is prepended to the existing one, and the order
// is deduplicated before committing.
func (bm *BootManager) PrependAndSetBootOrder(head []int) error {
	var newOrder []int

	// Combine head with existing boot order, filter out duplicates and non-existing entries
	for _, num := range append(append([]int(nil), head...), bm.bootOrder...) {
		isDuplicate := false
		for _, otherNum := range newOrder {
			if otherNum == num {
				isDuplicate = true
			}
		}
		if _, ok := bm.entries[num]; ok && !isDuplicate {
			newOrder = append(newOrder, num)
		}
	}

	return bm.setBootOrder(newOrder)
}

func (bm *BootManager) setBootOrder(order []int) error {
	// Set the boot order and update our cache
	if err := writeGlobal("BootOrder", efivars.EncodeBootOrder(order), bm.bootOrderAttrs); err != nil {
		return err
	}

	bm.bootOrder = order
	return nil
}
