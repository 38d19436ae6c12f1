// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package armor

import (
	"fmt"
	"io"
	"strings"
)

const (
	// first and last are the bounds of the data character range.
	// Characters map to base-85 digits 0-84.
	first = '!' // 0x21
	last  = 'u' // 0x75

	// zeroGroup and spaceGroup are whole-group shortcut characters:
	// one character standing for four zero bytes or four spaces.
	zeroGroup  = 'z'
	spaceGroup = 'y'

	spaceWord = 0x20202020
)

// Source decodes armored text into a stream of 8-bit symbols for a
// bitio.Reader. Decoding is incremental: each symbol pull consumes at
// most one five-character group, and chunked consumption is
// byte-identical to a one-shot decode of the same text.
type Source struct {
	text []byte
	pos  int

	out    [4]byte
	outLen int
	outPos int
}

// NewSource creates a decode source over armored text. The slice is
// not copied.
func NewSource(text []byte) *Source {
	return &Source{text: text}
}

// Width returns 8.
func (s *Source) Width() int { return 8 }

// Next returns the next decoded byte, io.EOF at the end of the
// armored data, or a corruption error.
func (s *Source) Next() (uint16, error) {
	if s.outPos >= s.outLen {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	b := s.out[s.outPos]
	s.outPos++
	return uint16(b), nil
}

// fill decodes the next group into the output buffer. The final group
// may be short: the decoder pads it with implicit 'u' characters
// (digit 84) and trims the matching number of trailing bytes, so a
// group of n real characters (2-4) yields n-1 bytes.
func (s *Source) fill() error {
	var value uint64
	count := 0
	for count < 5 {
		c, ok := s.nextDataChar()
		if !ok {
			break
		}
		switch {
		case c == zeroGroup:
			if count != 0 {
				return fmt.Errorf("armor: 'z' shortcut inside a group")
			}
			s.out = [4]byte{0, 0, 0, 0}
			s.outLen, s.outPos = 4, 0
			return nil
		case c == spaceGroup:
			if count != 0 {
				return fmt.Errorf("armor: 'y' shortcut inside a group")
			}
			s.out = [4]byte{' ', ' ', ' ', ' '}
			s.outLen, s.outPos = 4, 0
			return nil
		default:
			value = value*85 + uint64(c-first)
			count++
		}
	}

	if count == 0 {
		return io.EOF
	}
	if count == 1 {
		return fmt.Errorf("armor: truncated group (a single trailing character encodes no bytes)")
	}

	// Pad a short final group with the highest digit and trim the
	// corresponding trailing output bytes.
	for i := count; i < 5; i++ {
		value = value*85 + 84
	}
	if value > 0xFFFFFFFF {
		return fmt.Errorf("armor: group value %d overflows 32 bits", value)
	}

	s.out[0] = byte(value >> 24)
	s.out[1] = byte(value >> 16)
	s.out[2] = byte(value >> 8)
	s.out[3] = byte(value)
	s.outLen = count - 1
	s.outPos = 0
	return nil
}

// nextDataChar advances to the next character that carries data: a
// base-85 digit or a shortcut. Whitespace and anything else outside
// the data range is formatting noise from line wrapping and is
// skipped, never counted as data.
func (s *Source) nextDataChar() (byte, bool) {
	for s.pos < len(s.text) {
		c := s.text[s.pos]
		s.pos++
		if (c >= first && c <= last) || c == zeroGroup || c == spaceGroup {
			return c, true
		}
	}
	return 0, false
}

// Decode decodes armored text in one shot. It is equivalent to
// draining a Source and exists for tools and tests.
func Decode(text []byte) ([]byte, error) {
	source := NewSource(text)
	var out []byte
	for {
		b, err := source.Next()
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		out = append(out, byte(b))
	}
}

// Encode armors data as Ascii85 text. All-zero groups emit the 'z'
// shortcut and all-space groups emit 'y'. A final partial group of r
// bytes (1-3) is padded with zero bytes and emits its first r+1
// characters, never a shortcut. If wrap is positive, a newline is
// inserted after every wrap output characters.
func Encode(data []byte, wrap int) string {
	var b strings.Builder
	column := 0
	emit := func(c byte) {
		b.WriteByte(c)
		column++
		if wrap > 0 && column == wrap {
			b.WriteByte('\n')
			column = 0
		}
	}

	var group [5]byte
	for len(data) >= 4 {
		value := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
		data = data[4:]
		switch value {
		case 0:
			emit(zeroGroup)
		case spaceWord:
			emit(spaceGroup)
		default:
			for i := 4; i >= 0; i-- {
				group[i] = byte(value%85) + first
				value /= 85
			}
			for _, c := range group {
				emit(c)
			}
		}
	}

	if len(data) > 0 {
		var value uint32
		for i := 0; i < 4; i++ {
			value <<= 8
			if i < len(data) {
				value |= uint32(data[i])
			}
		}
		for i := 4; i >= 0; i-- {
			group[i] = byte(value%85) + first
			value /= 85
		}
		for _, c := range group[:len(data)+1] {
			emit(c)
		}
	}

	return b.String()
}
