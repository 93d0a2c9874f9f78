package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tendermint/checkpoint-light/crypto"
)

// Digest is the content address of a header, contents list, committee or
// transaction.
type Digest [crypto.HashSize]byte

// DigestFromHex parses a hex string, with or without a 0x prefix.
func DigestFromHex(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}

// DigestFromBytes copies bz into a Digest.
func DigestFromBytes(bz []byte) (Digest, error) {
	var d Digest
	if len(bz) != len(d) {
		return d, fmt.Errorf("%w: digest must be %d bytes, got %d", ErrMalformedInput, len(d), len(bz))
	}
	copy(d[:], bz)
	return d, nil
}

// IsZero reports whether all bytes are zero.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) Bytes() []byte {
	return d[:]
}

func (d Digest) String() string {
	return strings.ToUpper(hex.EncodeToString(d[:]))
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d[:])), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	bz, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	dd, err := DigestFromBytes(bz)
	if err != nil {
		return err
	}
	*d = dd
	return nil
}

// digestPtr returns a pointer to a copy of d.
func digestPtr(d Digest) *Digest {
	return &d
}
