// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive implements the greytar block format: the framing
// protocol, the per-session string table, the encoder that serializes
// operations into armored text, and the decoder/interpreter that
// replays them against a machine.System.
//
// An archive is a flat sequence of self-describing blocks, each
// (type uint8, size uint16, payload). The stream opens with a header
// block carrying the format version: version 1 is a plain block
// stream, version 2 wraps a complete inner version-1 stream in the
// dictionary codec from lib/dict. All textual content is interned in
// a string table by definition blocks and referenced by 16-bit
// indices, so repeated paths and names cost two bytes per use.
//
// Unknown block types are skipped by their declared size, never
// failed on — readers older than the producing encoder stay in sync
// with the stream. Everything else that goes wrong (unsupported
// version, unresolved string reference, a failed operation) aborts
// the remaining stream immediately; operations already applied stay
// applied.
package archive
