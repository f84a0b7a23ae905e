package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// HashResult contains both SHA-256 and BLAKE3 digests of a blob.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Equal reports whether both digests match.
func (h HashResult) Equal(o HashResult) bool {
	return h.SHA256 == o.SHA256 && h.BLAKE3 == o.BLAKE3
}

// Sum computes both digests of data.
func Sum(data []byte) HashResult {
	return HashResult{SHA256: Hash(data), BLAKE3: Blake3Hash(data)}
}

// SumReader computes both digests of everything read from r in one pass.
func SumReader(r io.Reader) (HashResult, int64, error) {
	s := sha256.New()
	b := blake3.New()
	n, err := io.Copy(io.MultiWriter(s, b), r)
	if err != nil {
		return HashResult{}, n, err
	}
	return HashResult{
		SHA256: hex.EncodeToString(s.Sum(nil)),
		BLAKE3: hex.EncodeToString(b.Sum(nil)),
	}, n, nil
}

// Hash computes the SHA-256 hash of the given data without storing it.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Hash computes the BLAKE3 hash of the given data without storing it.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
