// Package bls wraps the blst BLS12-381 implementation in the "minimal
// signature size" configuration: public keys live in G2 (96 bytes
// compressed) and signatures in G1 (48 bytes compressed).
package bls

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/tendermint/checkpoint-light/crypto"
)

const (
	// PubKeySize is the size, in bytes, of a compressed G2 public key.
	PubKeySize = 96
	// PrivKeySize is the size, in bytes, of a serialized secret scalar.
	PrivKeySize = 32
	// SignatureSize is the size, in bytes, of a compressed G1 signature.
	SignatureSize = 48

	KeyType = "bls12381-minsig"
)

// DST is the hash-to-curve domain separation tag of the basic (_NUL_)
// ciphersuite with signatures in G1. Committee keys are not proven here;
// see VerifyAggregate.
var DST = []byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_")

var (
	ErrInvalidPubKey    = errors.New("invalid BLS public key")
	ErrInvalidSignature = errors.New("invalid BLS signature")
	ErrNoSignatures     = errors.New("no signatures to aggregate")
)

var (
	_ crypto.PrivKey = PrivKey{}
	_ crypto.PubKey  = PubKey{}
)

//-------------------------------------

// PrivKey is a serialized BLS secret key.
type PrivKey []byte

// GenPrivKey generates a new key from the OS entropy source.
func GenPrivKey() PrivKey {
	ikm := make([]byte, 32)
	if _, err := rand.Read(ikm); err != nil {
		panic(err)
	}
	return genPrivKey(ikm)
}

// GenPrivKeyFromSecret deterministically derives a key from secret. Only use
// it for tests and fixtures.
func GenPrivKeyFromSecret(secret []byte) PrivKey {
	return genPrivKey(crypto.Checksum(secret))
}

func genPrivKey(ikm []byte) PrivKey {
	sk := blst.KeyGen(ikm)
	if sk == nil {
		panic("bls: key generation failed")
	}
	return PrivKey(sk.Serialize())
}

func (privKey PrivKey) Bytes() []byte { return []byte(privKey) }

func (privKey PrivKey) Type() string { return KeyType }

func (privKey PrivKey) secretKey() (*blst.SecretKey, error) {
	if len(privKey) != PrivKeySize {
		return nil, fmt.Errorf("incorrect private key %d bytes but expected %d bytes", len(privKey), PrivKeySize)
	}
	sk := new(blst.SecretKey).Deserialize(privKey)
	if sk == nil {
		return nil, errors.New("malformed BLS private key")
	}
	return sk, nil
}

// Sign produces a compressed G1 signature over msg.
func (privKey PrivKey) Sign(msg []byte) ([]byte, error) {
	sk, err := privKey.secretKey()
	if err != nil {
		return nil, err
	}
	sig := new(blst.P1Affine).Sign(sk, msg, DST)
	if sig == nil {
		return nil, errors.New("bls: signing failed")
	}
	return sig.Compress(), nil
}

// PubKey derives the public key. It panics on a malformed private key.
func (privKey PrivKey) PubKey() crypto.PubKey {
	sk, err := privKey.secretKey()
	if err != nil {
		panic(err)
	}
	return PubKey(new(blst.P2Affine).From(sk).Compress())
}

//-------------------------------------

// PubKey is a compressed G2 public key. It is hex encoded in JSON and text.
type PubKey []byte

func (pubKey PubKey) Bytes() []byte { return []byte(pubKey) }

func (pubKey PubKey) Type() string { return KeyType }

func (pubKey PubKey) String() string {
	return fmt.Sprintf("PubKeyBLS{%X}", []byte(pubKey))
}

func (pubKey PubKey) Equals(other crypto.PubKey) bool {
	if o, ok := other.(PubKey); ok {
		return bytes.Equal(pubKey, o)
	}
	return false
}

// ValidateBasic checks the encoding, that the point is on the curve, in the
// prime-order subgroup, and not the identity.
func (pubKey PubKey) ValidateBasic() error {
	_, err := pubKey.point()
	return err
}

func (pubKey PubKey) point() (*blst.P2Affine, error) {
	if len(pubKey) != PubKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPubKey, len(pubKey), PubKeySize)
	}
	p := new(blst.P2Affine).Uncompress(pubKey)
	if p == nil || !p.KeyValidate() {
		return nil, ErrInvalidPubKey
	}
	return p, nil
}

// VerifySignature checks a single signature over msg.
func (pubKey PubKey) VerifySignature(msg []byte, sig []byte) bool {
	return VerifyAggregate([]PubKey{pubKey}, msg, sig) == nil
}

func (pubKey PubKey) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(pubKey)), nil
}

func (pubKey *PubKey) UnmarshalText(text []byte) error {
	bz, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}
	*pubKey = bz
	return nil
}

//-------------------------------------

// AggregateSignatures combines compressed signatures into one compressed
// aggregate signature.
func AggregateSignatures(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, ErrNoSignatures
	}
	agg := new(blst.P1Aggregate)
	if !agg.AggregateCompressed(sigs, true) {
		return nil, ErrInvalidSignature
	}
	return agg.ToAffine().Compress(), nil
}

// VerifyAggregate checks that aggSig is an aggregate signature of msg by
// exactly the given public keys.
//
// FastAggregateVerify is only sound against rogue-key attacks if every key
// has a verified proof of possession. Committee keys are assumed to have been
// PoP-checked upstream, at validator registration on the chain, before they
// reach a committee.
func VerifyAggregate(pubKeys []PubKey, msg, aggSig []byte) error {
	if len(pubKeys) == 0 {
		return fmt.Errorf("%w: no public keys", ErrInvalidSignature)
	}
	if len(aggSig) != SignatureSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignature, len(aggSig), SignatureSize)
	}

	sig := new(blst.P1Affine).Uncompress(aggSig)
	if sig == nil {
		return fmt.Errorf("%w: not a point on G1", ErrInvalidSignature)
	}

	points := make([]*blst.P2Affine, len(pubKeys))
	for i, pk := range pubKeys {
		p, err := pk.point()
		if err != nil {
			return fmt.Errorf("public key #%d: %w", i, err)
		}
		points[i] = p
	}

	if !sig.FastAggregateVerify(true, points, msg, DST) {
		return ErrInvalidSignature
	}
	return nil
}
