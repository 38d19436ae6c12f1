// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package dict

import (
	"fmt"
	"sort"
)

// Compress encodes body as a serialized dictionary table followed by
// a 12-bit code stream terminated by the table-length sentinel. The
// output does not include the archive header block; the caller wraps
// it in a version-2 archive.
//
// Dictionary construction is a frequency/greedy scheme: a histogram
// of substrings (lengths 2-16) picks the most common sequences, every
// distinct single byte is forced into the table so encoding can
// always make progress, the body is encoded greedy-longest-match, and
// a compaction pass drops unused entries and orders the survivors by
// length so the grouped table serialization stays small.
func Compress(body []byte) ([]byte, error) {
	lookup, maxLen := buildLookup(body)

	codes, err := encodeBody(body, lookup, maxLen)
	if err != nil {
		return nil, err
	}

	entries, codes := compact(codes, lookup)

	out := serializeTable(entries)

	var w bitWriter
	for _, code := range codes {
		w.write12(uint16(code))
	}
	w.write12(uint16(len(entries)))
	w.flush()

	return append(out, w.buf...), nil
}

// buildLookup constructs the entry-bytes-to-index map and returns it
// with the longest entry length. Indices assigned here are
// provisional; compaction renumbers them.
func buildLookup(body []byte) (map[string]int, int) {
	histogram := make(map[string]int)
	for length := 2; length <= MaxEntryLen; length++ {
		for pos := 0; pos+length <= len(body); pos++ {
			histogram[string(body[pos:pos+length])]++
		}
	}

	singles := make(map[string]bool)
	for _, b := range body {
		singles[string([]byte{b})] = true
	}

	// Rank multi-byte candidates by frequency, ties broken by the
	// bytes themselves so output is deterministic.
	candidates := make([]string, 0, len(histogram))
	for sub := range histogram {
		candidates = append(candidates, sub)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if histogram[candidates[i]] != histogram[candidates[j]] {
			return histogram[candidates[i]] > histogram[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})

	// The single bytes are mandatory; the rest of the 12-bit code
	// space (minus the end-of-stream sentinel) goes to the most
	// common substrings.
	budget := MaxEntries - len(singles)
	if budget > len(candidates) {
		budget = len(candidates)
	}

	lookup := make(map[string]int, budget+len(singles))
	maxLen := 0
	add := func(sub string) {
		if _, ok := lookup[sub]; ok {
			return
		}
		lookup[sub] = len(lookup)
		if len(sub) > maxLen {
			maxLen = len(sub)
		}
	}
	for _, sub := range candidates[:budget] {
		add(sub)
	}
	for sub := range singles {
		add(sub)
	}

	return lookup, maxLen
}

// encodeBody converts body into table indices, greedy longest match
// at each position. The forced single-byte entries guarantee progress.
func encodeBody(body []byte, lookup map[string]int, maxLen int) ([]int, error) {
	var codes []int
	pos := 0
	for pos < len(body) {
		end := pos + maxLen
		if end > len(body) {
			end = len(body)
		}
		matched := false
		for tail := end; tail > pos; tail-- {
			if index, ok := lookup[string(body[pos:tail])]; ok {
				codes = append(codes, index)
				pos = tail
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("byte %#x at offset %d missing from dictionary", body[pos], pos)
		}
	}
	return codes, nil
}

// compact drops table entries the encoded body never references,
// orders survivors by entry length (grouped serialization stores
// same-length runs cheaply), and renumbers the code stream.
func compact(codes []int, lookup map[string]int) ([][]byte, []int) {
	byIndex := make(map[int]string, len(lookup))
	for sub, index := range lookup {
		byIndex[index] = sub
	}

	used := make(map[int]bool, len(codes))
	for _, code := range codes {
		used[code] = true
	}
	survivors := make([]int, 0, len(used))
	for index := range used {
		survivors = append(survivors, index)
	}
	sort.Slice(survivors, func(i, j int) bool {
		a, b := byIndex[survivors[i]], byIndex[survivors[j]]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})

	oldToNew := make(map[int]int, len(survivors))
	entries := make([][]byte, len(survivors))
	for newIndex, oldIndex := range survivors {
		oldToNew[oldIndex] = newIndex
		entries[newIndex] = []byte(byIndex[oldIndex])
	}

	recoded := make([]int, len(codes))
	for i, code := range codes {
		recoded[i] = oldToNew[code]
	}
	return entries, recoded
}

// serializeTable writes the grouped table form: runs of consecutive
// same-length entries, at most 15 per group, each opened by a header
// byte of (length-1)<<4 | count, closed by a zero header byte.
func serializeTable(entries [][]byte) []byte {
	var out []byte
	pos := 0
	for pos < len(entries) {
		length := len(entries[pos])
		count := 0
		for pos+count < len(entries) &&
			len(entries[pos+count]) == length &&
			count < maxGroupCount {
			count++
		}
		out = append(out, byte((length-1)<<4|count))
		for _, entry := range entries[pos : pos+count] {
			out = append(out, entry...)
		}
		pos += count
	}
	return append(out, 0)
}

// bitWriter packs values most-significant-bit first, mirroring the
// reader's big-endian merge order.
type bitWriter struct {
	buf  []byte
	acc  uint32
	bits int
}

func (w *bitWriter) write12(v uint16) {
	w.acc = w.acc<<12 | uint32(v&0x0FFF)
	w.bits += 12
	for w.bits >= 8 {
		w.bits -= 8
		w.buf = append(w.buf, byte(w.acc>>w.bits))
	}
	w.acc &= 1<<w.bits - 1
}

// flush pads any partial trailing byte with zero bits.
func (w *bitWriter) flush() {
	if w.bits > 0 {
		w.buf = append(w.buf, byte(w.acc<<(8-w.bits)))
		w.acc = 0
		w.bits = 0
	}
}
