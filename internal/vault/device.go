// ABOUTME: Device key material management for the vault
// ABOUTME: Random secret created on first use, stored 0600 in the data directory

package vault

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const deviceSecretSize = 32

// DeviceSecret returns the device-bound key material stored at path,
// generating and persisting a fresh random secret on first use. The secret
// is raw key material, not the AES key itself; the blob's per-seal salt
// stretches it via scrypt.
func DeviceSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) != deviceSecretSize {
			return nil, fmt.Errorf("device secret at %s has unexpected size %d", path, len(secret))
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading device secret: %w", err)
	}

	secret = make([]byte, deviceSecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("generating device secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating secret directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("writing device secret: %w", err)
	}
	return secret, nil
}
