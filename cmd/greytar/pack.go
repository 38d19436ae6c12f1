// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/greytar-foundation/greytar/lib/archive"
	"github.com/greytar-foundation/greytar/lib/bundle"
)

func packCmd(args []string) error {
	flagSet := pflag.NewFlagSet("greytar pack", pflag.ContinueOnError)
	output := flagSet.StringP("out", "o", "", "output file (default: stdout)")
	compress := flagSet.BoolP("compress", "z", false, "dictionary-compress the archive body")
	multiline := flagSet.BoolP("multiline", "l", false, "wrap output at 70 columns")
	verbose := flagSet.Bool("verbose", false, "debug logging")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("pack requires exactly one bundle descriptor file")
	}
	logger := newLogger(*verbose)

	builder := bundle.NewBuilder()
	builder.SetLogger(logger)
	if err := builder.ProcessFile(flagSet.Arg(0)); err != nil {
		return err
	}
	writer, err := builder.Build()
	if err != nil {
		return err
	}

	wrap := 0
	if *multiline {
		wrap = 70
	}
	armored, err := writer.Armored(*compress, wrap)
	if err != nil {
		return err
	}
	if len(armored) > archive.EditorSaveCeiling {
		logger.Warn("output exceeds the in-game editor save ceiling",
			"size", len(armored), "ceiling", archive.EditorSaveCeiling)
	}
	logger.Info("packed archive", "size", len(armored), "compressed", *compress)

	if *output == "" {
		fmt.Println(armored)
		return nil
	}
	if err := os.WriteFile(*output, []byte(armored+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", *output, err)
	}
	return nil
}
