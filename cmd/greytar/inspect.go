// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/greytar-foundation/greytar/lib/archive"
)

func inspectCmd(args []string) error {
	flagSet := pflag.NewFlagSet("greytar inspect", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("inspect requires exactly one archive file")
	}

	armored, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	infos, err := archive.Inspect(armored)
	for _, info := range infos {
		fmt.Printf("%-18s %5d  %s\n", info.Type, info.Size, info.Detail)
	}
	// Blocks decoded before the failure are still worth printing.
	if err != nil {
		return err
	}
	return nil
}
