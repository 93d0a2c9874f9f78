package crypto

import (
	"golang.org/x/crypto/blake2b"
)

// HashSize is the size in bytes of a content digest.
const HashSize = blake2b.Size256

// Checksum returns the Blake2b-256 of bz.
func Checksum(bz []byte) []byte {
	h := blake2b.Sum256(bz)
	return h[:]
}

// DomainChecksum returns the Blake2b-256 of domain || "::" || bz. Distinct
// object kinds hash under distinct domains so that the encoding of one can
// never be replayed as the digest of another.
func DomainChecksum(domain string, bz []byte) [HashSize]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only fails for oversized keys
	}
	h.Write([]byte(domain)) //nolint:errcheck // hash.Hash never errors
	h.Write([]byte("::"))   //nolint:errcheck
	h.Write(bz)             //nolint:errcheck

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// PubKey is a public key able to check a signature over msg.
type PubKey interface {
	Bytes() []byte
	VerifySignature(msg []byte, sig []byte) bool
	Equals(PubKey) bool
	Type() string
}

// PrivKey signs messages on behalf of PubKey.
type PrivKey interface {
	Bytes() []byte
	Sign(msg []byte) ([]byte, error)
	PubKey() PubKey
	Type() string
}
