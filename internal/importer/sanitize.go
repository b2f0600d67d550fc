package importer

// Streaming readers that clean up common CSV export artifacts before the
// data reaches encoding/csv. Both work in O(buffer) memory so file size
// never matters:
//
//   - bomSkipReader drops the UTF-8 BOM Windows tools prepend
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sanitizedReader wraps r so the stream comes out BOM-free and valid UTF-8.
func sanitizedReader(r io.Reader) io.Reader {
	return newUTF8Sanitizer(newBOMSkipReader(r))
}

func newBOMSkipReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces invalid UTF-8 with '?' on the fly. A multi-byte
// rune split across two Read calls is held back until its tail arrives.
type utf8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{reader: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if allASCII(p[:n]) {
		return n, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

// allASCII is the fast path; most CSV data never leaves ASCII.
func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of usable bytes.
// Unless atEOF, an incomplete trailing sequence is parked in pending.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if !atEOF && read+size >= len(data) && incompleteRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		if r == utf8.RuneError && size == 1 {
			// '?' keeps the output the same length; U+FFFD would grow it.
			data[write] = '?'
			write++
			read++
		} else {
			copy(data[write:], data[read:read+size])
			write += size
			read += size
		}
	}
	return write
}

// incompleteRune reports whether data starts a multi-byte sequence that
// needs more bytes than data holds.
func incompleteRune(data []byte) bool {
	if len(data) == 0 || data[0] < 0xC0 {
		return false
	}
	want := 2
	if data[0] >= 0xF0 {
		want = 4
	} else if data[0] >= 0xE0 {
		want = 3
	}
	return want > len(data)
}
