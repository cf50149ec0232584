// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/canonical/kernelstub/config"
	"github.com/canonical/kernelstub/efibootmgr"
	"github.com/canonical/kernelstub/installer"
)

// nvramState is the part of the boot store shown in the system information.
type nvramState interface {
	CurrentEntryIndex() int
	CurrentOrderPosition() int
}

func systemInfo(target installer.Target, store nvramState, cfg config.Config) string {
	entry, variable := "none", "none"
	if idx := store.CurrentEntryIndex(); idx != efibootmgr.NoEntry {
		entry = fmt.Sprint(idx)
		variable = fmt.Sprintf("%04X", store.CurrentOrderPosition())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "    OS:..................%s\n", target.Label())
	fmt.Fprintf(&b, "    Root partition:....../dev/%s\n", target.Drive.RootDevice)
	fmt.Fprintf(&b, "    Root FS UUID:........%s\n", target.Drive.RootUUID)
	fmt.Fprintf(&b, "    ESP Path:............%s\n", cfg.ESPPath)
	fmt.Fprintf(&b, "    ESP Partition:......./dev/%s\n", target.Drive.ESPDevice)
	fmt.Fprintf(&b, "    ESP Partition #:.....%d\n", target.Drive.ESPPartition)
	fmt.Fprintf(&b, "    NVRAM entry #:.......%s\n", entry)
	fmt.Fprintf(&b, "    Boot Variable #:.....%s\n", variable)
	fmt.Fprintf(&b, "    Kernel Boot Options:.%s\n", cfg.KernelOptions)
	fmt.Fprintf(&b, "    Kernel Image Path:...%s\n", target.OS.KernelPath)
	fmt.Fprintf(&b, "    Initrd Image Path:...%s\n", target.OS.InitrdPath)
	return b.String()
}

func printConfig(out io.Writer, cfg config.Config) {
	value := color.New(color.FgCyan).SprintFunc()
	_, _ = color.New(color.Bold).Fprintln(out, "Configuration details:")
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "   Kernel options:................%s\n", value(cfg.KernelOptions))
	_, _ = fmt.Fprintf(out, "   ESP Location:..................%s\n", value(cfg.ESPPath))
	_, _ = fmt.Fprintf(out, "   Management Mode:...............%s\n", value(cfg.ManageMode))
	_, _ = fmt.Fprintf(out, "   Install Loader configuration:..%s\n", value(cfg.SetupLoader))
	_, _ = fmt.Fprintf(out, "   Unified kernel image:..........%s\n", value(cfg.Unified))
}
