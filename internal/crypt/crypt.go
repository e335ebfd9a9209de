// Package crypt implements the optional AES-256-GCM envelope on the
// snapshot file (spec §4.10). The WAL is never encrypted by this package;
// that is a documented gap in the specification, not an oversight here.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"github.com/chaturanga836/docstore/internal/common"
)

const (
	saltSize = 32
	ivSize   = 16
	keySize  = 32 // AES-256

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Seal encrypts plaintext under a key derived from passphrase, producing
// the on-disk envelope `salt ‖ iv ‖ authTag ‖ ciphertext`, hex-encoded as a
// single UTF-8 stream.
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, common.NewIOError(err, "crypt: generate salt")
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, common.NewIOError(err, "crypt: generate iv")
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// Seal appends the GCM auth tag to the end of the ciphertext; the spec
	// orders the envelope authTag before ciphertext, so split it back out.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	envelope := make([]byte, 0, saltSize+ivSize+len(tag)+len(ciphertext))
	envelope = append(envelope, salt...)
	envelope = append(envelope, iv...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ciphertext...)

	out := make([]byte, hex.EncodedLen(len(envelope)))
	hex.Encode(out, envelope)
	return out, nil
}

// Open reverses Seal, returning the original plaintext. Any corruption
// (bad hex, truncated envelope, authentication failure) is reported as a
// CorruptionError.
func Open(passphrase string, data []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	envelope := make([]byte, hex.DecodedLen(len(data)))
	n, err := hex.Decode(envelope, data)
	if err != nil {
		return nil, common.NewCorruptionError(err, "crypt: invalid hex envelope")
	}
	envelope = envelope[:n]

	gcm, err := newGCMForOverhead()
	if err != nil {
		return nil, err
	}
	tagSize := gcm.Overhead()
	minLen := saltSize + ivSize + tagSize
	if len(envelope) < minLen {
		return nil, common.NewCorruptionError(nil, "crypt: envelope too short")
	}

	salt := envelope[:saltSize]
	iv := envelope[saltSize : saltSize+ivSize]
	tag := envelope[saltSize+ivSize : saltSize+ivSize+tagSize]
	ciphertext := envelope[saltSize+ivSize+tagSize:]

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	gcm, err = newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte(nil), ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, common.NewCorruptionError(err, "crypt: authentication failed")
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, common.NewErrorWithCause(common.ErrInternal, "crypt: derive key", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, common.NewErrorWithCause(common.ErrInternal, "crypt: new AES cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, common.NewErrorWithCause(common.ErrInternal, "crypt: new GCM", err)
	}
	return gcm, nil
}

// newGCMForOverhead returns a GCM instance purely to query its fixed
// authentication-tag size before the real key is derived.
func newGCMForOverhead() (cipher.AEAD, error) {
	return newGCM(make([]byte, keySize))
}

// ErrEmptyPassphrase is returned by Seal and Open when the passphrase is
// empty.
var ErrEmptyPassphrase = fmt.Errorf("crypt: passphrase must not be empty")
