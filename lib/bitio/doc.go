// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

// Package bitio provides a buffered bit-stream reader over pluggable
// symbol sources. A symbol source produces fixed-width unsigned
// integers on demand (8-bit raw bytes, 8-bit Ascii85-decoded bytes);
// the reader serves arbitrary-width reads (1-16 bits) on top,
// independent of the symbol width of the source.
//
// Bits are merged most-significant-first, so reads that cross symbol
// boundaries preserve big-endian bit order. This matters for the
// archive format's 12-bit dictionary codes, which straddle byte
// boundaries in the compressed body.
package bitio
