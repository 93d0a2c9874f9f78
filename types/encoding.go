package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
)

// ErrMalformedInput is returned for any wire input that fails to decode, is
// not in canonical form, or is structurally invalid. It is always reported
// before any signature is looked at.
var ErrMalformedInput = errors.New("malformed input")

// Blob encodings. A blob is one encoding byte followed by the payload.
const (
	BlobEncodingPlain  byte = 0x00
	BlobEncodingSnappy byte = 0x01
)

// Encode returns the canonical RLP encoding of v.
func Encode(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

func mustEncode(v interface{}) []byte {
	bz, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(fmt.Sprintf("canonical encoding of %T: %v", v, err))
	}
	return bz
}

// Decode decodes the canonical encoding in bz into v. Trailing bytes and any
// input that would not re-encode to exactly bz are rejected.
func Decode(bz []byte, v interface{}) error {
	if err := rlp.DecodeBytes(bz, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	re, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if !bytes.Equal(re, bz) {
		return fmt.Errorf("%w: non-canonical encoding", ErrMalformedInput)
	}
	return nil
}

// EncodeBlob encodes v and frames it, optionally snappy-compressed.
func EncodeBlob(v interface{}, compress bool) ([]byte, error) {
	bz, err := Encode(v)
	if err != nil {
		return nil, err
	}
	if compress {
		return append([]byte{BlobEncodingSnappy}, snappy.Encode(nil, bz)...), nil
	}
	return append([]byte{BlobEncodingPlain}, bz...), nil
}

// DecodeBlob strips the blob framing and decodes the payload into v.
func DecodeBlob(blob []byte, v interface{}) error {
	if len(blob) == 0 {
		return fmt.Errorf("%w: empty blob", ErrMalformedInput)
	}
	payload := blob[1:]
	switch blob[0] {
	case BlobEncodingPlain:
	case BlobEncodingSnappy:
		var err error
		payload, err = snappy.Decode(nil, payload)
		if err != nil {
			return fmt.Errorf("%w: snappy: %v", ErrMalformedInput, err)
		}
	default:
		return fmt.Errorf("%w: unknown blob encoding %#x", ErrMalformedInput, blob[0])
	}
	return Decode(payload, v)
}
