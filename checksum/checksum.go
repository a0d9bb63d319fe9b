package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// DefaultPrefix is the number of leading bytes of a ROM image that take part in its fingerprint (1 MiB).
const DefaultPrefix = 1048576

// Size is the length of a hex encoded fingerprint.
const Size = sha256.Size * 2

var ErrRead = errors.New("checksum: read failed")

// Fingerprint returns the hex encoded SHA-256 digest of the first prefix bytes read from r,
// or of everything r yields if it ends sooner. A prefix <= 0 selects DefaultPrefix.
func Fingerprint(r io.Reader, prefix int64) (string, error) {
	if prefix <= 0 {
		prefix = DefaultPrefix
	}

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(r, prefix)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRead, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintBytes is Fingerprint over an in-memory blob.
func FingerprintBytes(b []byte, prefix int64) string {
	if prefix <= 0 {
		prefix = DefaultPrefix
	}
	if int64(len(b)) > prefix {
		b = b[:prefix]
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// FingerprintFile fingerprints the file at path within fs.
func FingerprintFile(fs afero.Fs, path string, prefix int64) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	return Fingerprint(f, prefix)
}

// Valid reports whether s has the shape of a fingerprint: lowercase hex of the digest length.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
