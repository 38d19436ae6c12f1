// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package bitio

import (
	"errors"
	"testing"
)

func TestReadBitsWithinSymbol(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0b1011_0010}))

	tests := []struct {
		n    int
		want uint16
	}{
		{1, 0b1},
		{3, 0b011},
		{4, 0b0010},
	}
	for _, tt := range tests {
		got, err := r.ReadBits(tt.n)
		if err != nil {
			t.Fatalf("ReadBits(%d) failed: %v", tt.n, err)
		}
		if got != tt.want {
			t.Errorf("ReadBits(%d) = %#b, want %#b", tt.n, got, tt.want)
		}
	}
	if r.More() {
		t.Error("More() = true after consuming all 8 bits")
	}
}

func TestReadBitsAcrossSymbols(t *testing.T) {
	// 12-bit reads over 8-bit symbols must preserve big-endian bit
	// order: 0xAB 0xCD 0xEF packs the codes 0xABC and 0xDEF.
	r := NewReader(NewByteSource([]byte{0xAB, 0xCD, 0xEF}))

	first, err := r.ReadUint12()
	if err != nil {
		t.Fatalf("first ReadUint12 failed: %v", err)
	}
	if first != 0xABC {
		t.Errorf("first code = %#x, want 0xABC", first)
	}

	second, err := r.ReadUint12()
	if err != nil {
		t.Fatalf("second ReadUint12 failed: %v", err)
	}
	if second != 0xDEF {
		t.Errorf("second code = %#x, want 0xDEF", second)
	}
}

func TestReadBitsEndOfStream(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0xFF}))

	if _, err := r.ReadBits(4); err != nil {
		t.Fatalf("ReadBits(4) failed: %v", err)
	}
	// 4 bits remain; a 8-bit read must starve.
	if _, err := r.ReadBits(8); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("ReadBits(8) error = %v, want ErrEndOfStream", err)
	}
}

func TestReadBitsWidthValidation(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0x00, 0x00, 0x00}))
	for _, n := range []int{0, -1, 17} {
		if _, err := r.ReadBits(n); err == nil {
			t.Errorf("ReadBits(%d) should fail", n)
		}
	}
}

func TestReadUint16BigEndian(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0x12, 0x34}))
	v, err := r.ReadUint16()
	if err != nil {
		t.Fatalf("ReadUint16 failed: %v", err)
	}
	if v != 0x1234 {
		t.Errorf("ReadUint16 = %#x, want 0x1234", v)
	}
}

func TestReadASCIIString(t *testing.T) {
	data := append([]byte{0x00, 0x05}, []byte("hello")...)
	r := NewReader(NewByteSource(data))

	s, err := r.ReadASCIIString()
	if err != nil {
		t.Fatalf("ReadASCIIString failed: %v", err)
	}
	if s != "hello" {
		t.Errorf("ReadASCIIString = %q, want %q", s, "hello")
	}
}

func TestReadASCIIStringEmpty(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0x00, 0x00}))
	s, err := r.ReadASCIIString()
	if err != nil {
		t.Fatalf("ReadASCIIString failed: %v", err)
	}
	if s != "" {
		t.Errorf("ReadASCIIString = %q, want empty", s)
	}
}

func TestReadASCIIStringTruncated(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0x00, 0x05, 'h', 'i'}))
	if _, err := r.ReadASCIIString(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("truncated string error = %v, want ErrEndOfStream", err)
	}
}

func TestReadUTF16String(t *testing.T) {
	// "héllo" with 2-byte code units: 0x0068 0x00E9 0x006C 0x006C 0x006F.
	data := []byte{
		0x00, 0x05,
		0x00, 0x68, 0x00, 0xE9, 0x00, 0x6C, 0x00, 0x6C, 0x00, 0x6F,
	}
	r := NewReader(NewByteSource(data))

	s, err := r.ReadUTF16String()
	if err != nil {
		t.Fatalf("ReadUTF16String failed: %v", err)
	}
	if s != "héllo" {
		t.Errorf("ReadUTF16String = %q, want %q", s, "héllo")
	}
}

func TestSkipPreservesFollowingBytes(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0x01, 0x02, 0x03, 0x04}))

	if err := r.Skip(2); err != nil {
		t.Fatalf("Skip(2) failed: %v", err)
	}
	b, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte after skip failed: %v", err)
	}
	if b != 0x03 {
		t.Errorf("byte after Skip(2) = %#x, want 0x03", b)
	}
}

func TestSkipWithPartialBits(t *testing.T) {
	// Skipping whole bytes after a 4-bit read must behave exactly
	// like four consecutive byte reads on the misaligned stream.
	r := NewReader(NewByteSource([]byte{0xA1, 0x23, 0x45, 0x67}))

	if _, err := r.ReadBits(4); err != nil {
		t.Fatalf("ReadBits(4) failed: %v", err)
	}
	if err := r.Skip(2); err != nil {
		t.Fatalf("Skip(2) failed: %v", err)
	}
	b, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte failed: %v", err)
	}
	if b != 0x56 {
		t.Errorf("misaligned byte after skip = %#x, want 0x56", b)
	}
}

func TestSkipPastEnd(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0x01}))
	if err := r.Skip(3); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Skip past end error = %v, want ErrEndOfStream", err)
	}
}

func TestMoreBuffersPeekedSymbol(t *testing.T) {
	r := NewReader(NewByteSource([]byte{0x7F}))

	if !r.More() {
		t.Fatal("More() = false with one byte available")
	}
	b, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte failed: %v", err)
	}
	if b != 0x7F {
		t.Errorf("byte after More() = %#x, want 0x7F", b)
	}
	if r.More() {
		t.Error("More() = true on exhausted source")
	}
}
