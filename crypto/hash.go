package crypto

// hash.go supplies the hashing primitives used to generate the entropy pool
// for the random-number generator in rand.go. SHA-256 is the only supported
// algorithm; stars does not need pluggable hash functions.

import (
	"crypto/sha256"
	"hash"
)

// HashSize is the size, in bytes, of a Hash.
const HashSize = sha256.Size

// Hash is a SHA-256 digest.
type Hash [HashSize]byte

// NewHash returns a new SHA-256 hasher.
func NewHash() hash.Hash {
	return sha256.New()
}

// HashBytes returns the SHA-256 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}
