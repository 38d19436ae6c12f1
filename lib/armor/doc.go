// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

// Package armor implements the Ascii85 text armoring used to carry a
// binary archive over a copy/paste-only channel. Four input bytes map
// to five characters in the printable range '!'..'u', with two
// whole-group shortcuts: 'z' for four zero bytes and 'y' for four
// spaces. Whitespace and any other character outside the data range
// are non-data and are skipped during decode, so line-wrapped or
// lightly mangled pastes still decode byte-identically.
//
// The decode side is a bitio.SymbolSource producing 8-bit symbols, so
// the archive bit reader can pull from armored text directly.
package armor
