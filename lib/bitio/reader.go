// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package bitio

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
)

// ErrEndOfStream is returned by read operations when the symbol source
// is exhausted before the requested number of bits is available. The
// block loop treats it as a clean end of archive when it occurs at a
// block boundary; anywhere else it means the stream is truncated.
var ErrEndOfStream = errors.New("bitio: end of stream")

// Reader serves arbitrary-width bit reads over a SymbolSource. Not
// safe for concurrent use; decoding is a strictly sequential pull.
type Reader struct {
	source SymbolSource
	width  int

	// acc holds buffered bits, right-aligned: the next bits to be
	// consumed are the most significant of the low `bits` bits.
	acc  uint32
	bits int
}

// NewReader creates a bit reader over source.
func NewReader(source SymbolSource) *Reader {
	return &Reader{source: source, width: source.Width()}
}

// More reports whether at least one more bit can be read. It may pull
// a symbol from the source to find out; the symbol is buffered, not
// lost. Errors from the source (other than exhaustion) also report
// false here and surface on the next read.
func (r *Reader) More() bool {
	if r.bits > 0 {
		return true
	}
	symbol, err := r.source.Next()
	if err != nil {
		return false
	}
	r.acc = r.acc<<r.width | uint32(symbol)
	r.bits += r.width
	return true
}

// ReadBits reads n bits (1-16) and returns them as an unsigned value.
// Symbols are merged most-significant-first, so a read crossing a
// symbol boundary yields big-endian bit order.
func (r *Reader) ReadBits(n int) (uint16, error) {
	if n < 1 || n > 16 {
		return 0, fmt.Errorf("bitio: read width %d out of range [1,16]", n)
	}
	for r.bits < n {
		symbol, err := r.source.Next()
		if err != nil {
			if err == io.EOF {
				return 0, ErrEndOfStream
			}
			return 0, err
		}
		r.acc = r.acc<<r.width | uint32(symbol)
		r.bits += r.width
	}
	remaining := r.bits - n
	value := uint16(r.acc >> remaining)
	r.acc &= 1<<remaining - 1
	r.bits = remaining
	return value, nil
}

// ReadByte reads 8 bits.
func (r *Reader) ReadByte() (byte, error) {
	v, err := r.ReadBits(8)
	return byte(v), err
}

// ReadUint16 reads a 16-bit big-endian value.
func (r *Reader) ReadUint16() (uint16, error) {
	return r.ReadBits(16)
}

// ReadUint12 reads a 12-bit value. Used for dictionary codes.
func (r *Reader) ReadUint12() (uint16, error) {
	return r.ReadBits(12)
}

// ReadASCIIString reads a 16-bit character count followed by that many
// 8-bit characters.
func (r *Reader) ReadASCIIString() (string, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return "", fmt.Errorf("reading string length: %w", err)
	}
	buf := make([]byte, count)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("reading string byte %d of %d: %w", i, count, err)
		}
		buf[i] = b
	}
	return string(buf), nil
}

// ReadUTF16String reads a 16-bit character count followed by that many
// 16-bit code units. The archive format restricts text to 2-byte code
// units; surrogate pairs are never produced by a conforming encoder,
// and stray surrogates decode to the replacement character.
func (r *Reader) ReadUTF16String() (string, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return "", fmt.Errorf("reading string length: %w", err)
	}
	units := make([]uint16, count)
	for i := range units {
		u, err := r.ReadBits(16)
		if err != nil {
			return "", fmt.Errorf("reading string unit %d of %d: %w", i, count, err)
		}
		units[i] = u
	}
	return string(utf16.Decode(units)), nil
}

// Skip discards exactly n bytes by repeated byte reads. Any partial
// bits in the buffer are preserved exactly as plain byte consumption
// would leave them.
func (r *Reader) Skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadByte(); err != nil {
			return fmt.Errorf("skipping byte %d of %d: %w", i, n, err)
		}
	}
	return nil
}
