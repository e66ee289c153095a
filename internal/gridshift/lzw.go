package gridshift

// TIFF flavoured LZW decoding.
//
// TIFF LZW widens the code size one code earlier than the GIF/PDF variant
// implemented by compress/lzw, which therefore rejects TIFF streams. Codes
// are packed MSB first, start at 9 bits and grow to 12.

import (
	"io"

	"github.com/pkg/errors"
)

const (
	lzwMaxWidth  = 12
	lzwClearCode = 256
	lzwEOICode   = 257
	lzwFirstCode = 258
	lzwTableSize = 1<<lzwMaxWidth + 1
)

var errLZWInvalidCode = errors.New("lzw: invalid code")

type lzwEntry struct {
	prefix int32 // previous entry, -1 for literals
	suffix byte
	length int32
}

// lzwBitReader reads MSB-first codes of varying width.
type lzwBitReader struct {
	src    []byte
	bitPos int
}

func (b *lzwBitReader) read(width int) (int, error) {
	if b.bitPos+width > len(b.src)*8 {
		return 0, io.ErrUnexpectedEOF
	}
	code := 0
	for i := 0; i < width; i++ {
		pos := b.bitPos + i
		bit := int(b.src[pos>>3]>>(7-uint(pos&7))) & 1
		code = code<<1 | bit
	}
	b.bitPos += width
	return code, nil
}

// decompressLZW decodes a TIFF LZW chunk. sizeHint is the expected output
// size; a truncated stream without an EOI code ends the output quietly.
func decompressLZW(src []byte, sizeHint int) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	br := &lzwBitReader{src: src}
	table := make([]lzwEntry, lzwTableSize)
	for i := 0; i < 256; i++ {
		table[i] = lzwEntry{prefix: -1, suffix: byte(i), length: 1}
	}
	out := make([]byte, 0, sizeHint)
	scratch := make([]byte, 0, 1<<lzwMaxWidth)

	// expand writes the string of code into scratch.
	expand := func(code int) []byte {
		n := int(table[code].length)
		scratch = scratch[:n]
		for i := n - 1; code >= 0; i-- {
			scratch[i] = table[code].suffix
			code = int(table[code].prefix)
		}
		return scratch
	}

	width := 9
	next := lzwFirstCode
	prev := -1

	first, err := br.read(width)
	if err != nil {
		return nil, err
	}
	if first != lzwClearCode {
		return nil, errors.New("lzw: stream does not start with a clear code")
	}

	for {
		code, err := br.read(width)
		if err == io.ErrUnexpectedEOF {
			return out, nil
		}
		switch {
		case code == lzwEOICode:
			return out, nil
		case code == lzwClearCode:
			width, next, prev = 9, lzwFirstCode, -1
			continue
		case prev == -1:
			if code > 255 {
				return nil, errors.New("lzw: code after clear is not a literal")
			}
			out = append(out, byte(code))
			prev = code
			continue
		}

		var head byte
		switch {
		case code < next:
			s := expand(code)
			head = s[0]
			out = append(out, s...)
		case code == next:
			s := expand(prev)
			head = s[0]
			out = append(out, s...)
			out = append(out, head)
		default:
			return nil, errLZWInvalidCode
		}

		if next < lzwTableSize {
			table[next] = lzwEntry{prefix: int32(prev), suffix: head, length: table[prev].length + 1}
			next++
		}
		if next+1 >= 1<<width && width < lzwMaxWidth {
			width++
		}
		prev = code
	}
}
