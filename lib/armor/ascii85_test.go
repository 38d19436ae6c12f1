// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package armor

import (
	"bytes"
	"io"
	"testing"
)

func TestRoundTripLengths(t *testing.T) {
	// Every length class matters: empty, each partial-group size,
	// one full group, and a ragged tail beyond one group.
	inputs := [][]byte{
		{},
		{0x01},
		{0x01, 0x02},
		{0x01, 0x02, 0x03},
		{0x01, 0x02, 0x03, 0x04},
		{0xDE, 0xAD, 0xBE, 0xEF, 0x42},
		{0xDE, 0xAD, 0xBE, 0xEF, 0x42, 0x43},
		{0xDE, 0xAD, 0xBE, 0xEF, 0x42, 0x43, 0x44},
		[]byte("the quick brown fox jumps over the lazy dog"),
	}

	for _, input := range inputs {
		encoded := Encode(input, 0)
		decoded, err := Decode([]byte(encoded))
		if err != nil {
			t.Fatalf("Decode(Encode(%x)) failed: %v", input, err)
		}
		if !bytes.Equal(decoded, input) {
			t.Errorf("round trip %x: got %x (armored %q)", input, decoded, encoded)
		}
	}
}

func TestRoundTripAllByteValues(t *testing.T) {
	input := make([]byte, 256)
	for i := range input {
		input[i] = byte(i)
	}
	decoded, err := Decode([]byte(Encode(input, 0)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, input) {
		t.Error("all-byte-values round trip mismatch")
	}
}

func TestZeroGroupShortcut(t *testing.T) {
	input := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	encoded := Encode(input, 0)
	if encoded != "zz" {
		t.Errorf("Encode(8 zero bytes) = %q, want \"zz\"", encoded)
	}
	decoded, err := Decode([]byte(encoded))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, input) {
		t.Errorf("zero shortcut round trip: got %x", decoded)
	}
}

func TestSpaceGroupShortcut(t *testing.T) {
	input := []byte("    ")
	encoded := Encode(input, 0)
	if encoded != "y" {
		t.Errorf("Encode(4 spaces) = %q, want \"y\"", encoded)
	}
	decoded, err := Decode([]byte(encoded))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, input) {
		t.Errorf("space shortcut round trip: got %q", decoded)
	}
}

func TestShortcutsNeverUsedForPartialGroups(t *testing.T) {
	// A trailing partial group of zero bytes must be spelled out;
	// 'z' stands for exactly four bytes.
	encoded := Encode([]byte{0, 0}, 0)
	for _, c := range encoded {
		if c == 'z' || c == 'y' {
			t.Fatalf("Encode(2 zero bytes) = %q uses a whole-group shortcut", encoded)
		}
	}
}

func TestDecodeIgnoresWhitespaceAndNoise(t *testing.T) {
	input := []byte("hello greytar world, packed tight")
	encoded := Encode(input, 0)

	// Re-wrap with assorted non-data characters sprinkled in.
	var noisy bytes.Buffer
	for i, c := range []byte(encoded) {
		noisy.WriteByte(c)
		switch i % 7 {
		case 0:
			noisy.WriteByte('\n')
		case 3:
			noisy.WriteString(" \t")
		case 5:
			noisy.WriteByte('~') // outside the data range entirely
		}
	}

	decoded, err := Decode(noisy.Bytes())
	if err != nil {
		t.Fatalf("Decode(noisy) failed: %v", err)
	}
	if !bytes.Equal(decoded, input) {
		t.Errorf("noisy decode = %q, want %q", decoded, input)
	}
}

func TestDecodeWrappedMatchesUnwrapped(t *testing.T) {
	input := bytes.Repeat([]byte{0x5A, 0x17, 0x00, 0xC3, 0x9B}, 60)

	plain, err := Decode([]byte(Encode(input, 0)))
	if err != nil {
		t.Fatalf("Decode(unwrapped) failed: %v", err)
	}
	wrapped, err := Decode([]byte(Encode(input, 70)))
	if err != nil {
		t.Fatalf("Decode(wrapped) failed: %v", err)
	}
	if !bytes.Equal(plain, wrapped) {
		t.Error("wrapped and unwrapped decodes differ")
	}
	if !bytes.Equal(plain, input) {
		t.Error("wrapped round trip mismatch")
	}
}

func TestChunkedDecodeMatchesOneShot(t *testing.T) {
	input := []byte("chunked decoding must be restartable and byte-identical")
	encoded := []byte(Encode(input, 10))

	source := NewSource(encoded)
	var chunked []byte
	for {
		b, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Source.Next failed: %v", err)
		}
		chunked = append(chunked, byte(b))
	}

	oneShot, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(chunked, oneShot) {
		t.Error("chunked decode differs from one-shot decode")
	}
	if !bytes.Equal(chunked, input) {
		t.Errorf("chunked decode = %q, want %q", chunked, input)
	}
}

func TestDecodeSingleTrailingCharacterFails(t *testing.T) {
	encoded := Encode([]byte{1, 2, 3, 4}, 0) + "#"
	if _, err := Decode([]byte(encoded)); err == nil {
		t.Error("Decode should fail on a single trailing data character")
	}
}

func TestDecodeShortcutInsideGroupFails(t *testing.T) {
	for _, text := range []string{"!!z", "!!!y"} {
		if _, err := Decode([]byte(text)); err == nil {
			t.Errorf("Decode(%q) should fail: shortcut inside a group", text)
		}
	}
}
