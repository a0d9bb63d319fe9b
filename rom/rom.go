package rom

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// Field is a fixed-width header field at a fixed offset from the start of a ROM image.
type Field struct {
	Offset int64
	Length int64
}

// Header fields of the three cartridge formats we can tell apart.
var (
	// Game Boy Color: 16 byte title at $0134 (overlaps the CGB flag on late carts).
	GBCTitle = Field{Offset: 0x134, Length: 16}

	// Game Boy Advance: 12 byte title at $A0, 4 byte game code at $AC.
	GBATitle    = Field{Offset: 0xA0, Length: 12}
	GBAGameCode = Field{Offset: 0xAC, Length: 4}

	// Nintendo DS: 12 byte title at $00, 4 byte game code at $0C.
	NDSTitle    = Field{Offset: 0x00, Length: 12}
	NDSGameCode = Field{Offset: 0x0C, Length: 4}
)

// Image provides bounded reads over the contents of a ROM image.
// Reads past the end of the image are truncated, never errors.
type Image struct {
	r    io.ReaderAt
	size int64
}

func New(r io.ReaderAt, size int64) *Image {
	if size < 0 {
		size = 0
	}
	return &Image{r: r, size: size}
}

func FromBytes(contents []byte) *Image {
	return New(bytes.NewReader(contents), int64(len(contents)))
}

func (i *Image) Size() int64 { return i.size }

// Slice returns up to f.Length bytes at f.Offset. An image that ends before
// the field yields the bytes that exist, possibly none.
func (i *Image) Slice(f Field) []byte {
	if i == nil || i.r == nil || f.Offset < 0 || f.Length <= 0 || f.Offset >= i.size {
		return nil
	}

	n := f.Length
	if f.Offset+n > i.size {
		n = i.size - f.Offset
	}

	buf := make([]byte, n)
	read, err := i.r.ReadAt(buf, f.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil
	}
	return buf[:read]
}

// ASCII decodes the field as ASCII text. Anything that is not 7-bit ASCII
// decodes to the empty string.
func (i *Image) ASCII(f Field) string {
	b := i.Slice(f)
	for _, c := range b {
		if c > 0x7F {
			return ""
		}
	}
	return string(b)
}

// Title returns the printable text of a title field: bytes outside 7-bit ASCII
// are dropped and the text ends at the first NUL. Late Game Boy Color carts
// store their CGB flag in the last title byte, so a strict decode would lose
// the whole title.
func (i *Image) Title(f Field) string {
	b := i.Slice(f)
	text := make([]byte, 0, len(b))
	for _, c := range b {
		if c > 0x7F {
			continue
		}
		if c == 0 {
			break
		}
		text = append(text, c)
	}
	return strings.TrimSpace(string(text))
}
