// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/greytar-foundation/greytar/lib/archive"
	"github.com/greytar-foundation/greytar/lib/machine"
)

func extractCmd(args []string) error {
	flagSet := pflag.NewFlagSet("greytar extract", pflag.ContinueOnError)
	home := flagSet.String("home", "/home/user", "home directory of the simulated extracting user")
	ignoreConflicts := flagSet.Bool("ignore-user-conflicts", false,
		"treat user/group already-exists failures as notices")
	verbose := flagSet.Bool("verbose", false, "debug logging")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("extract requires exactly one archive file")
	}
	logger := newLogger(*verbose)

	armored, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	system := machine.NewMemory(*home)
	decoder := archive.NewDecoder(system)
	decoder.SetLogger(logger)
	decoder.SetIgnoreConflicts(*ignoreConflicts)
	if err := decoder.DecodeText(armored); err != nil {
		return err
	}
	logger.Info("archive extracted", "home", *home)
	return nil
}
