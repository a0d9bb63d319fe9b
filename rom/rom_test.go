package rom

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImage_GBAHeader(t *testing.T) {
	contents := make([]byte, 0xC0)
	_, err := hex.Decode(
		contents[0xA0:],
		// "POKEMON FIRE" "BPRE" "01"
		[]byte("504f4b454d4f4e2046495245425052453031"),
	)
	if err != nil {
		t.Fatal(err)
	}

	img := FromBytes(contents)
	assert.Equal(t, int64(0xC0), img.Size())
	assert.Equal(t, "POKEMON FIRE", img.Title(GBATitle))
	assert.Equal(t, "BPRE", img.ASCII(GBAGameCode))
}

func TestImage_ShortReads(t *testing.T) {
	contents := make([]byte, 0xAE)
	copy(contents[0xAC:], "BP")

	img := FromBytes(contents)
	assert.Equal(t, "BP", img.ASCII(GBAGameCode), "field running off the end is truncated")
	assert.Empty(t, img.ASCII(GBCTitle), "field past the end reads empty")
	assert.Empty(t, FromBytes(nil).ASCII(NDSGameCode))
}

func TestImage_NonASCIIDecodesEmpty(t *testing.T) {
	contents := make([]byte, 0x10)
	copy(contents[0x0C:], []byte{'C', 0xFF, 'U', 'E'})

	assert.Empty(t, FromBytes(contents).ASCII(NDSGameCode))
}

func TestImage_TitleTrimsPadding(t *testing.T) {
	contents := make([]byte, 0x150)
	copy(contents[0x134:], "  PM_CRYSTAL\x00\x00\x00\x00")

	assert.Equal(t, "PM_CRYSTAL", FromBytes(contents).Title(GBCTitle))
}

func TestImage_TitleDropsNonASCII(t *testing.T) {
	// retail Crystal: title, NUL, manufacturer code, then the CGB-only flag in the last byte
	contents := make([]byte, 0x150)
	copy(contents[0x134:], "PM_CRYSTAL\x00BYTE\xC0")

	img := FromBytes(contents)
	assert.Equal(t, "PM_CRYSTAL", img.Title(GBCTitle))
	assert.Empty(t, img.ASCII(GBCTitle), "strict decode still rejects the field")

	copy(contents[0x134:], "\x80POKEMON_GLD\x80")
	assert.Equal(t, "POKEMON_GLD", img.Title(GBCTitle))
}

type brokenReaderAt struct{}

func (brokenReaderAt) ReadAt([]byte, int64) (int, error) { return 0, errors.New("io fault") }

func TestImage_ReadFaultDegrades(t *testing.T) {
	img := New(brokenReaderAt{}, 0x200)
	assert.Nil(t, img.Slice(GBCTitle))
	assert.Empty(t, img.ASCII(GBAGameCode))
}
