// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package efivars

import (
	"encoding/binary"
	"fmt"
)

// MaxBootEntries is the number of Boot#### variables the firmware can address.
const MaxBootEntries = 65535

// BootVariableName returns the name of the Boot#### variable for a boot number.
func BootVariableName(bootNum int) string {
	return fmt.Sprintf("Boot%04X", bootNum)
}

// ParseBootVariableName returns the boot number of a Boot#### variable name.
// The second return value is false if name is not a boot entry variable
// (for example BootOrder or BootCurrent).
func ParseBootVariableName(name string) (int, bool) {
	if len(name) != 8 {
		return -1, false
	}
	var bootNum int
	if parsed, err := fmt.Sscanf(name, "Boot%04X", &bootNum); parsed != 1 || err != nil {
		return -1, false
	}
	// Sscanf accepts lower case hex, the firmware doesn't.
	if BootVariableName(bootNum) != name {
		return -1, false
	}
	return bootNum, true
}

// DecodeBootOrder parses the payload of the BootOrder variable.
func DecodeBootOrder(data []byte) []int {
	order := make([]int, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		order[i/2] = int(binary.LittleEndian.Uint16(data[i : i+2]))
	}
	return order
}

// EncodeBootOrder produces the payload of the BootOrder variable.
func EncodeBootOrder(order []int) []byte {
	output := make([]byte, 0, len(order)*2)
	for _, num := range order {
		var numBytes [2]byte
		binary.LittleEndian.PutUint16(numBytes[0:], uint16(num))
		output = append(output, numBytes[0], numBytes[1])
	}
	return output
}
