// Package crypto holds the node key pair and the signature primitives used
// to authenticate peers.
package crypto

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	// PublicKeySize is the size of a compressed secp256k1 public key.
	PublicKeySize = secp256k1.PubKeyBytesLenCompressed

	// PrivateKeySize is the size of a serialized private key.
	PrivateKeySize = secp256k1.PrivKeyBytesLen

	// SignatureSize is the size of a serialized Schnorr signature.
	SignatureSize = schnorr.SignatureSize
)

// PublicKey is a compressed secp256k1 public key.
type PublicKey [PublicKeySize]byte

// ZeroPublicKey is the placeholder used when a key is unknown.
var ZeroPublicKey PublicKey

// IsZero returns whether the key is the zero placeholder.
func (key PublicKey) IsZero() bool {
	return key == ZeroPublicKey
}

func (key PublicKey) String() string {
	return hex.EncodeToString(key[:])
}

// ParsePublicKeyHex decodes a hex-encoded compressed public key and makes
// sure it lies on the curve.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	var key PublicKey
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return key, errors.Wrapf(err, "public key %s is not hex", s)
	}
	if len(bytes) != PublicKeySize {
		return key, errors.Errorf("public key %s has size %d, expected %d", s, len(bytes), PublicKeySize)
	}
	_, err = secp256k1.ParsePubKey(bytes)
	if err != nil {
		return key, errors.Wrapf(err, "public key %s is invalid", s)
	}
	copy(key[:], bytes)
	return key, nil
}

// Signature is a serialized Schnorr signature.
type Signature [SignatureSize]byte

// KeyPair is a private key together with its public key.
type KeyPair struct {
	privateKey *secp256k1.PrivateKey
	publicKey  PublicKey
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}
	return newKeyPair(privateKey), nil
}

// KeyPairFromPrivateKeyHex restores a key pair from a hex-encoded private key.
func KeyPairFromPrivateKeyHex(s string) (*KeyPair, error) {
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "private key is not hex")
	}
	if len(bytes) != PrivateKeySize {
		return nil, errors.Errorf("private key has size %d, expected %d", len(bytes), PrivateKeySize)
	}
	return newKeyPair(secp256k1.PrivKeyFromBytes(bytes)), nil
}

func newKeyPair(privateKey *secp256k1.PrivateKey) *KeyPair {
	keyPair := &KeyPair{privateKey: privateKey}
	copy(keyPair.publicKey[:], privateKey.PubKey().SerializeCompressed())
	return keyPair
}

// PublicKey returns the public half of the pair.
func (keyPair *KeyPair) PublicKey() PublicKey {
	return keyPair.publicKey
}

// PrivateKeyHex returns the hex-encoded private key.
func (keyPair *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(keyPair.privateKey.Serialize())
}

// Sign signs the concatenation of buffers.
func (keyPair *KeyPair) Sign(buffers ...[]byte) (Signature, error) {
	var signature Signature
	schnorrSignature, err := schnorr.Sign(keyPair.privateKey, hashBuffers(buffers))
	if err != nil {
		return signature, errors.Wrap(err, "failed to sign")
	}
	copy(signature[:], schnorrSignature.Serialize())
	return signature, nil
}

// Verify returns whether signature was produced by the owner of publicKey
// over the concatenation of buffers.
func Verify(publicKey PublicKey, signature Signature, buffers ...[]byte) bool {
	parsedKey, err := secp256k1.ParsePubKey(publicKey[:])
	if err != nil {
		return false
	}
	parsedSignature, err := schnorr.ParseSignature(signature[:])
	if err != nil {
		return false
	}
	return parsedSignature.Verify(hashBuffers(buffers), parsedKey)
}

func hashBuffers(buffers [][]byte) []byte {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		panic(errors.Wrap(err, "blake2b.New256 with no key cannot fail"))
	}
	for _, buffer := range buffers {
		hasher.Write(buffer)
	}
	return hasher.Sum(nil)
}
