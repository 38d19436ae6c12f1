// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package dict

import (
	"bytes"
	"testing"

	"github.com/greytar-foundation/greytar/lib/bitio"
)

// tableBytes serializes a hand-built table the way the format
// specifies, for driving the decompressor directly in tests.
func tableBytes(entries [][]byte) []byte {
	return serializeTable(entries)
}

// packCodes packs 12-bit codes most-significant-bit first.
func packCodes(codes ...uint16) []byte {
	var w bitWriter
	for _, code := range codes {
		w.write12(code)
	}
	w.flush()
	return w.buf
}

func TestDecompressHandBuiltStream(t *testing.T) {
	table := [][]byte{
		[]byte("a"),
		[]byte("b"),
		[]byte("ab"),
		[]byte("hello"),
	}
	// Codes reference entries; sentinel = table length (4).
	stream := append(tableBytes(table), packCodes(3, 2, 0, 1, 2, 4)...)

	out, err := Decompress(bitio.NewReader(bitio.NewByteSource(stream)))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	want := "helloababab"
	if string(out) != want {
		t.Errorf("Decompress = %q, want %q", out, want)
	}
}

func TestDecompressReservedSentinel(t *testing.T) {
	// 4095 terminates even when the table is smaller.
	table := [][]byte{[]byte("x")}
	stream := append(tableBytes(table), packCodes(0, 0, 4095)...)

	out, err := Decompress(bitio.NewReader(bitio.NewByteSource(stream)))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(out) != "xx" {
		t.Errorf("Decompress = %q, want %q", out, "xx")
	}
}

func TestDecompressOutOfRangeCode(t *testing.T) {
	table := [][]byte{[]byte("x"), []byte("y")}
	// Code 7 is past the table (length 2) and is not a sentinel.
	stream := append(tableBytes(table), packCodes(0, 7, 2)...)

	if _, err := Decompress(bitio.NewReader(bitio.NewByteSource(stream))); err == nil {
		t.Error("Decompress should reject a code beyond the table length")
	}
}

func TestDecompressEmptyBody(t *testing.T) {
	// Empty table, immediate sentinel (0).
	stream := append([]byte{0x00}, packCodes(0)...)

	out, err := Decompress(bitio.NewReader(bitio.NewByteSource(stream)))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Decompress = %x, want empty", out)
	}
}

func TestTableGroupsSplitAtFifteen(t *testing.T) {
	// 20 single-byte entries do not fit one group (count field caps
	// at 15); the serializer must emit two groups.
	entries := make([][]byte, 20)
	for i := range entries {
		entries[i] = []byte{byte('a' + i)}
	}
	serialized := serializeTable(entries)

	if serialized[0] != 0x0F {
		t.Errorf("first group header = %#x, want 0x0F (length 1, count 15)", serialized[0])
	}
	second := serialized[1+15]
	if second != 0x05 {
		t.Errorf("second group header = %#x, want 0x05 (length 1, count 5)", second)
	}

	table, err := ReadTable(bitio.NewReader(bitio.NewByteSource(serialized)))
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(table) != 20 {
		t.Fatalf("ReadTable returned %d entries, want 20", len(table))
	}
	for i, entry := range table {
		if !bytes.Equal(entry, entries[i]) {
			t.Errorf("entry %d = %x, want %x", i, entry, entries[i])
		}
	}
}

func TestCompressRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"single":     {0x42},
		"repetitive": bytes.Repeat([]byte("abcabcabc"), 50),
		"mixed":      []byte("create-folder /home/user/project then create-file main.src in /home/user/project"),
		"binary":     {0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0xFF, 0xFE, 0x00, 0x01},
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			compressed, err := Compress(input)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			out, err := Decompress(bitio.NewReader(bitio.NewByteSource(compressed)))
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(out, input) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(out), len(input))
			}
		})
	}
}

func TestCompressShrinksRepetitiveInput(t *testing.T) {
	input := bytes.Repeat([]byte("the same twelve bytes over and over. "), 40)
	compressed, err := Compress(input)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(compressed) >= len(input) {
		t.Errorf("compressed %d bytes to %d; expected a reduction on repetitive input",
			len(input), len(compressed))
	}
}

func TestCompressDeterministic(t *testing.T) {
	input := []byte("determinism matters for reproducible archives")
	a, err := Compress(input)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	b, err := Compress(input)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Compress output differs between identical runs")
	}
}
