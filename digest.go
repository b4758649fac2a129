package lavender

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// DigestSize is the length of every digest stored in an index or cache.
const DigestSize = 16

// Digest algorithms.
const (
	DigestMD5    = "md5"
	DigestBLAKE3 = "blake3"
)

// Digest is a binary content hash.
type Digest []byte

// Hex returns the lowercase hex encoding used by all persisted formats.
func (d Digest) Hex() string { return hex.EncodeToString(d) }

func (d Digest) String() string { return d.Hex() }

func (d Digest) Equal(other Digest) bool { return bytes.Equal(d, other) }

// ParseDigest decodes a hex digest. Upper case input is accepted.
func ParseDigest(s string) (Digest, error) {
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("%w: digest %q: %v", ErrCorrupt, s, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty digest", ErrCorrupt)
	}
	return Digest(b), nil
}

// Hasher computes digests for one algorithm.
type Hasher func(data []byte) Digest

// NewHasher returns the hasher for algo ("md5" or "blake3").
func NewHasher(algo string) (Hasher, error) {
	switch algo {
	case "", DigestMD5:
		return MD5, nil
	case DigestBLAKE3:
		return func(data []byte) Digest {
			sum := blake3.Sum256(data)
			return Digest(sum[:DigestSize])
		}, nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q", algo)
	}
}

// MD5 is the default hasher.
func MD5(data []byte) Digest {
	sum := md5.Sum(data)
	return Digest(sum[:])
}
