package checksum

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestFingerprint_KnownVector(t *testing.T) {
	got, err := Fingerprint(strings.NewReader("abc"), DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
	assert.Len(t, got, Size)
}

func TestFingerprint_Deterministic(t *testing.T) {
	blob := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 4096)

	a, err := Fingerprint(bytes.NewReader(blob), 0)
	require.NoError(t, err)
	b, err := Fingerprint(bytes.NewReader(blob), 0)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, a, FingerprintBytes(blob, 0))
}

func TestFingerprint_OnlyPrefixCounts(t *testing.T) {
	const prefix = 64
	a := bytes.Repeat([]byte{1}, 128)
	b := append(bytes.Repeat([]byte{1}, prefix), bytes.Repeat([]byte{2}, 64)...)

	fa, err := Fingerprint(bytes.NewReader(a), prefix)
	require.NoError(t, err)
	fb, err := Fingerprint(bytes.NewReader(b), prefix)
	require.NoError(t, err)
	assert.Equal(t, fa, fb, "bytes past the prefix must not change the fingerprint")

	c := bytes.Repeat([]byte{1}, 128)
	c[prefix-1] = 9
	fc, err := Fingerprint(bytes.NewReader(c), prefix)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestFingerprint_ShortBlobHashesWhole(t *testing.T) {
	blob := []byte("short rom")
	got, err := Fingerprint(bytes.NewReader(blob), 1024)
	require.NoError(t, err)
	assert.Equal(t, FingerprintBytes(blob, len64(blob)), got)
}

func TestFingerprint_ReadError(t *testing.T) {
	got, err := Fingerprint(failingReader{}, 16)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRead))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Empty(t, got)
}

func TestFingerprintFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/uploads/a.gba", []byte("abc"), 0o644))

	got, err := FingerprintFile(fs, "/uploads/a.gba", DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, FingerprintBytes([]byte("abc"), DefaultPrefix), got)

	_, err = FingerprintFile(fs, "/uploads/missing.gba", DefaultPrefix)
	assert.ErrorIs(t, err, ErrRead)
}

func TestValid(t *testing.T) {
	good := FingerprintBytes([]byte("x"), 0)
	tests := []struct {
		in   string
		want bool
	}{
		{good, true},
		{strings.ToUpper(good), false},
		{good[:Size-1], false},
		{"../../etc/passwd", false},
		{"", false},
		{strings.Repeat("g", Size), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.in), tt.in)
	}
}

func len64(b []byte) int64 { return int64(len(b)) }
