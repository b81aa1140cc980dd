// ABOUTME: AES-256-GCM sealing for the vault blob with scrypt key derivation
// ABOUTME: Blob layout: base64(version || salt || nonce || ciphertext)

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// blobVersion is bumped if the layout or KDF parameters ever change
	blobVersion = 0x01

	saltSize = 16

	// scrypt parameters: interactive-strength, fine for a blob opened once
	// per session
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keySize = 32
)

// deriveKey stretches key material (device secret or passphrase) into an
// AES-256 key using the blob's salt.
func deriveKey(secret, salt []byte) ([]byte, error) {
	key, err := scrypt.Key(secret, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext under the given key material. Every call uses a
// fresh salt and nonce, so sealing the same keyring twice yields different
// blobs. The result is self-contained: everything needed for decryption
// except the key material itself is inside the blob.
func seal(secret, plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, 1+len(salt)+len(nonce)+len(ciphertext))
	blob = append(blob, blobVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// open decrypts a sealed blob with the given key material.
func open(secret []byte, blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding blob: %w", err)
	}
	if len(raw) < 1+saltSize {
		return nil, fmt.Errorf("blob too short")
	}
	if raw[0] != blobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", raw[0])
	}

	salt := raw[1 : 1+saltSize]
	rest := raw[1+saltSize:]

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("blob too short for nonce")
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting blob: %w", err)
	}
	return plaintext, nil
}

func newGCM(secret, salt []byte) (cipher.AEAD, error) {
	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
