// Package cryptobox implements the symmetric half of the envelope-encryption
// pipeline: AES-256-GCM content encryption with a per-call random nonce, and
// a versioned, self-describing bundle format for storage.
//
// Decryption fails closed: a wrong key, a flipped bit anywhere in the
// bundle, or a malformed bundle yields an error and no partial plaintext.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/starfrich/cryptletter/internal/common"
)

// GenerateKey returns a fresh random 32-byte content key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(common.KeySize)
}

func checkKey(key []byte) error {
	if len(key) != common.KeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", common.ErrInvalidKey, common.KeySize, len(key))
	}
	return nil
}

// Encrypt authenticated-encrypts plaintext under key with a fresh random
// nonce and returns the resulting bundle. The GCM tag is carried separately
// from the ciphertext in the bundle.
func Encrypt(plaintext, key []byte) (*Bundle, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())

	// Seal appends the tag to the ciphertext; the bundle keeps them apart.
	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - common.TagSize

	return &Bundle{
		Ciphertext: sealed[:split],
		Nonce:      nonce,
		Tag:        sealed[split:],
		Version:    common.BundleVersion,
	}, nil
}

// Decrypt authenticated-decrypts the bundle with key. Any tag mismatch or
// structural defect returns ErrDecryptionFailed or ErrMalformedBundle with
// no output.
func Decrypt(b *Bundle, key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(b.Ciphertext)+len(b.Tag))
	sealed = append(sealed, b.Ciphertext...)
	sealed = append(sealed, b.Tag...)

	plaintext, err := aesgcm.Open(nil, b.Nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}
