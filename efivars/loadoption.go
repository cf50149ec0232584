// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

// Package efivars contains helpers for encoding EFI boot variables
package efivars

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// NewLoadOptionArgumentFromUTF8 converts the UTF-8 string to the UTF-16LE
// optional data of a load option, as passed to the kernel EFI stub.
// No NUL terminator is appended.
func NewLoadOptionArgumentFromUTF8(input string) ([]byte, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	return encoder.Bytes([]byte(input))
}

// LoadOptionArgumentToUTF8 decodes UTF-16LE optional data back into a string.
// Trailing NUL characters are dropped.
func LoadOptionArgumentToUTF8(data []byte) (string, error) {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(data)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(out, "\x00")), nil
}
