// This file is part of kernelstub
// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/canonical/kernelstub/config"
	"github.com/canonical/kernelstub/drive"
	"github.com/canonical/kernelstub/efibootmgr"
	"github.com/canonical/kernelstub/installer"
	"github.com/canonical/kernelstub/opsys"
)

// Exit statuses besides the ones of installer.DeployError.
const (
	exitFailure       = 1 // kernel or initrd missing, or an unclassified failure
	exitNoOptions     = 2
	exitStubFailed    = 3
	exitInvalidConfig = 4
)

// exitError carries the exit status of a failed run.
type exitError struct {
	status int
	err    error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(status int, format string, args ...any) error {
	return &exitError{status: status, err: fmt.Errorf(format, args...)}
}

// exitStatus maps the error of a run to the process exit status.
func exitStatus(err error) int {
	var exitErr *exitError
	var deployErr *installer.DeployError
	var syncErr *installer.SyncError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.status
	case errors.As(err, &deployErr):
		return deployErr.ExitStatus()
	case errors.As(err, &syncErr):
		return exitStubFailed
	default:
		return exitFailure
	}
}

type flags struct {
	dryRun      bool
	espPath     string
	rootPath    string
	kernelPath  string
	initrdPath  string
	options     string
	setupLoader bool
	installStub bool
	manageOnly  bool
	forceUpdate bool
	unified     bool
	printConfig bool
	verbosity   int
	configPath  string
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.BoolVarP(&f.dryRun, "dry-run", "d", false, "Don't perform any actions, just simulate them")
	fs.StringVarP(&f.espPath, "esp-path", "e", "", "Manually specify the path to the ESP")
	fs.StringVarP(&f.rootPath, "root-path", "r", "/", "The path to the root filesystem to use")
	fs.StringVarP(&f.kernelPath, "kernel-path", "k", "", "The path to the kernel image")
	fs.StringVarP(&f.initrdPath, "initrd-path", "i", "", "The path to the initrd image")
	fs.StringVarP(&f.options, "options", "o", "", "The total list of kernel options to pass")
	fs.BoolVarP(&f.setupLoader, "loader", "l", false, "Create a systemd-boot compatible loader configuration")
	fs.BoolVarP(&f.installStub, "stub", "s", false, "Set up NVRAM entries for the copied kernel")
	fs.BoolVarP(&f.manageOnly, "manage-only", "m", false, "Only copy entries, don't set up the NVRAM")
	fs.BoolVarP(&f.forceUpdate, "force-update", "f", false, "Forcibly update any loader.conf to set the new entry as the default")
	fs.BoolVarP(&f.unified, "unified", "u", false, "Build a unified kernel image")
	fs.BoolVarP(&f.printConfig, "print-config", "p", false, "Print the current configuration and exit")
	fs.CountVarP(&f.verbosity, "verbose", "v", "Increase program verbosity and display extra output")
	fs.StringVarP(&f.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
}

// logLevel returns the console log level for the -v count.
func (f *flags) logLevel() slog.Level {
	v := f.verbosity
	if f.printConfig && v < 1 {
		v = 1
	}
	switch {
	case v <= 0:
		return slog.LevelWarn
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// apply merges the command line into the stored configuration.
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("esp-path") {
		cfg.ESPPath = f.espPath
	}
	if f.options != "" {
		cfg.KernelOptions = f.options
	}
	if f.setupLoader {
		cfg.SetupLoader = true
	}
	if f.installStub {
		cfg.ManageMode = false
	}
	if f.manageOnly {
		cfg.ManageMode = true
	}
	if f.unified {
		cfg.Unified = true
	}
}

func run(cmd *cobra.Command, f *flags) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: f.logLevel(),
	}))
	slog.SetDefault(logger)
	logger.Debug("Logging set up")

	cfg, err := config.Load(f.configPath)
	if err != nil {
		logger.Error("Malformed configuration! Deleting the configuration file makes kernelstub regenerate it from defaults.", "error", err)
		return &exitError{status: exitInvalidConfig, err: err}
	}
	f.apply(cmd, &cfg)

	osInfo, err := opsys.New(f.rootPath)
	if err != nil {
		return &exitError{status: exitInvalidConfig, err: err}
	}
	if f.kernelPath != "" {
		logger.Debug("Manually specified kernel path", "path", f.kernelPath)
		osInfo.KernelPath = f.kernelPath
	}
	if f.initrdPath != "" {
		logger.Debug("Manually specified initrd path", "path", f.initrdPath)
		osInfo.InitrdPath = f.initrdPath
	}
	if _, err := os.Stat(osInfo.KernelPath); err != nil {
		return fail(exitFailure, "can't find the kernel image, use --kernel-path to specify it: %w", err)
	}
	if _, err := os.Stat(osInfo.InitrdPath); err != nil {
		return fail(exitFailure, "can't find the initrd image, use --initrd-path to specify it: %w", err)
	}

	if cfg.KernelOptions == "" {
		return fail(exitNoOptions, "no kernel parameters found, set kernel_options in %s or use --options", f.configPath)
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{status: exitInvalidConfig, err: err}
	}

	drv, err := drive.New(f.rootPath, cfg.ESPPath)
	if err != nil {
		return &exitError{status: exitInvalidConfig, err: err}
	}

	target := installer.Target{OS: osInfo, Drive: drv}
	store := efibootmgr.NewBootManager(target.Label())
	if err := store.Refresh(); err != nil {
		logger.Debug("cannot read NVRAM boot entries", "error", err)
	}

	logger.Info("System information:\n\n" + systemInfo(target, store, cfg))

	if f.printConfig {
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	}

	logger.Debug("Setting up boot...")
	kopts := installer.KernelCommandLine(drv.RootUUID, cfg.KernelOptions)
	logger.Debug("kernel command line", "kopts", kopts)

	runner := installer.NewRunner(f.dryRun, logger)
	in := installer.New(target, runner, store,
		installer.WithUnified(cfg.Unified),
		installer.WithLogger(logger))
	err = in.Install(installer.Options{
		KernelOptions: kopts,
		SetupLoader:   cfg.SetupLoader,
		Overwrite:     f.forceUpdate || cfg.ForceUpdate,
		ManageMode:    cfg.ManageMode,
	})
	if err != nil {
		return err
	}

	if f.dryRun {
		logger.Info("Simulate saving configuration", "path", f.configPath)
		return nil
	}
	if err := config.Save(f.configPath, cfg); err != nil {
		logger.Warn("Couldn't save the configuration", "path", f.configPath, "error", err)
	}
	return nil
}

func main() {
	var f flags

	rootCmd := &cobra.Command{
		Use:           "kernelstub",
		Short:         "Manage booting Linux directly through the kernel EFI stub",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &f)
		},
	}
	f.register(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(exitStatus(err))
	}
}
