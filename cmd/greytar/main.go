// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

// greytar packs, inspects, and extracts grey-tar archives.
//
// Usage:
//
//	greytar pack [flags] <bundle-file>
//	greytar inspect <archive-file>
//	greytar extract [flags] <archive-file>
//	greytar version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/greytar-foundation/greytar/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "pack":
		err = packCmd(args)
	case "inspect":
		err = inspectCmd(args)
	case "extract":
		err = extractCmd(args)
	case "version", "--version", "-v":
		fmt.Printf("greytar %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the progress logger. Debug output is opt-in per
// subcommand via --verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func printUsage() {
	fmt.Print(`greytar - pack, inspect, and extract grey-tar archives

USAGE
    greytar <command> [flags] <file>

COMMANDS
    pack     Build an armored archive from a bundle descriptor
    inspect  List the blocks of an archive without applying anything
    extract  Replay an archive against a simulated machine
    version  Show version

EXAMPLES
    # Pack a bundle descriptor into an armored archive
    greytar pack -o out.gt bundle.jsonc

    # Pack with dictionary compression and line wrapping
    greytar pack -z -l -o out.gt bundle.jsonc

    # Show what an archive would do
    greytar inspect out.gt

    # Dry-run extraction with user conflict tolerance
    greytar extract --ignore-user-conflicts out.gt

Run 'greytar <command> --help' for command-specific flags.
`)
}
