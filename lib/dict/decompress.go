// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package dict

import (
	"fmt"

	"github.com/greytar-foundation/greytar/lib/bitio"
)

// Format limits. These are protocol constants — changing them breaks
// compatibility with deployed extractors.
const (
	// MaxEntries is the number of distinct table entries addressable
	// by a 12-bit code, minus the reserved end-of-stream sentinel.
	MaxEntries = 4095

	// MaxEntryLen is the longest byte sequence one table entry can
	// hold: a 4-bit length-minus-one field caps it at 16.
	MaxEntryLen = 16

	// maxGroupCount is the most entries one table group header can
	// announce (4-bit count field; zero terminates the table).
	maxGroupCount = 15

	// endSentinel is the reserved code value guaranteed to terminate
	// the body. The authoritative terminator is the current table
	// length; 4095 only coincides with it when the table is full.
	endSentinel = 4095
)

// ReadTable reads the serialized dictionary table from r, which must
// be positioned immediately after the version-2 header block. Entry
// indices are assigned in read order, continuous across groups.
func ReadTable(r *bitio.Reader) ([][]byte, error) {
	var table [][]byte
	for {
		header, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading dictionary group header: %w", err)
		}
		count := int(header & 0x0F)
		if count == 0 {
			return table, nil
		}
		length := int(header>>4) + 1
		for i := 0; i < count; i++ {
			entry := make([]byte, length)
			for j := range entry {
				b, err := r.ReadByte()
				if err != nil {
					return nil, fmt.Errorf("reading dictionary entry %d (%d bytes): %w",
						len(table), length, err)
				}
				entry[j] = b
			}
			if len(table) >= MaxEntries {
				return nil, fmt.Errorf("dictionary table exceeds %d entries", MaxEntries)
			}
			table = append(table, entry)
		}
	}
}

// Decompress reads a dictionary table and its 12-bit code stream from
// r and reconstructs the original byte sequence. The result is a
// complete version-1 archive, header block first.
func Decompress(r *bitio.Reader) ([]byte, error) {
	table, err := ReadTable(r)
	if err != nil {
		return nil, err
	}

	var out []byte
	for {
		code, err := r.ReadUint12()
		if err != nil {
			return nil, fmt.Errorf("reading dictionary code: %w", err)
		}
		if int(code) == len(table) || code == endSentinel {
			return out, nil
		}
		if int(code) > len(table) {
			return nil, fmt.Errorf("dictionary code %d out of range (table has %d entries)",
				code, len(table))
		}
		out = append(out, table[code]...)
	}
}
