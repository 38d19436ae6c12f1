// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

// Package dict implements the archive's in-band dictionary
// compression. The compressed section is a serialized lookup table
// followed by a stream of fixed-width 12-bit codes, each standing for
// one table entry (a byte sequence of 1-16 bytes). The stream is
// terminated by the code equal to the table length; 4095 is the
// reserved upper bound of that sentinel, reached only when the table
// is full-sized.
//
// The table is serialized as groups of same-length entries. Each
// group opens with one header byte — entry length minus one in the
// high nibble, entry count in the low nibble — followed by the raw
// entries. A header byte with a zero count terminates the table.
//
// Compression wraps a complete inner archive: the decompressed bytes
// are themselves a self-contained version-1 block stream, header
// first.
package dict
