// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package bitio

import "io"

// SymbolSource produces fixed-width unsigned symbols on demand. Every
// symbol must be strictly less than 2^Width. Next returns io.EOF when
// the source is exhausted; any other error indicates corrupt input and
// is propagated unchanged by the reader.
type SymbolSource interface {
	// Width returns the number of bits in each symbol (1-16).
	Width() int

	// Next returns the next symbol, or io.EOF when exhausted.
	Next() (uint16, error)
}

// ByteSource exposes an in-memory byte slice as a stream of 8-bit
// symbols. It is the source used for the body of a compressed archive
// after dictionary decompression.
type ByteSource struct {
	data []byte
	pos  int
}

// NewByteSource creates a symbol source over data. The slice is not
// copied; the caller must not mutate it while reading.
func NewByteSource(data []byte) *ByteSource {
	return &ByteSource{data: data}
}

// Width returns 8.
func (s *ByteSource) Width() int { return 8 }

// Next returns the next byte, or io.EOF past the end.
func (s *ByteSource) Next() (uint16, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	b := s.data[s.pos]
	s.pos++
	return uint16(b), nil
}
