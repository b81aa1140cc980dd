// ABOUTME: Encrypted credential vault for provider API keys
// ABOUTME: Keyring operations persist a single encrypted blob through a BlobStore

package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftline/driftline/internal/store"
)

// Vault errors
var (
	// ErrVaultCorrupt signals that the persisted blob failed to decrypt or
	// parse. It is recoverable: Unlock still returns a usable empty keyring,
	// and the caller's policy is to discard the unreadable blob.
	ErrVaultCorrupt = errors.New("vault blob corrupt")

	// ErrImportFailed signals that an externally supplied blob failed to
	// decrypt or parse. Unlike ErrVaultCorrupt it is not recovered.
	ErrImportFailed = errors.New("vault import failed")

	// ErrPersistFailed signals that writing the blob to local storage failed.
	// The in-memory keyring is left unchanged when this is returned.
	ErrPersistFailed = errors.New("vault persist failed")

	// ErrUnknownProvider is returned for providers outside the enumeration
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider identifies a model provider whose API key the vault holds.
type Provider string

// Supported providers. Custom is the catch-all for self-hosted endpoints.
const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderGroq      Provider = "groq"
	ProviderMistral   Provider = "mistral"
	ProviderCustom    Provider = "custom"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
	ProviderGroq,
	ProviderMistral,
	ProviderCustom,
}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderGroq, ProviderMistral, ProviderCustom:
		return true
	}
	return false
}

// Entry holds one provider's key material.
type Entry struct {
	Key        string     `json:"key"`
	Label      string     `json:"label,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Keyring maps each provider to at most one entry.
type Keyring map[Provider]*Entry

// clone returns a deep copy so callers can never mutate vault state directly
func (k Keyring) clone() Keyring {
	out := make(Keyring, len(k))
	for p, e := range k {
		c := *e
		out[p] = &c
	}
	return out
}

// BlobStore is what the vault needs from local storage: a single opaque slot.
// Get must return store.ErrNotFound when no blob has ever been written.
type BlobStore interface {
	GetVaultBlob(ctx context.Context) (string, error)
	PutVaultBlob(ctx context.Context, blob string) error
}

// Vault holds the decrypted keyring in memory and mirrors every mutation to
// the encrypted blob. The blob is a single-writer resource: callers must
// serialize SetKey/RemoveKey calls, since persist always overwrites the full
// blob rather than patching it.
type Vault struct {
	blobs        BlobStore
	deviceSecret []byte
	keyring      Keyring
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a vault bound to the given device secret. Call Unlock before
// any keyring operation.
func New(blobs BlobStore, deviceSecret []byte) *Vault {
	return &Vault{
		blobs:        blobs,
		deviceSecret: deviceSecret,
		keyring:      Keyring{},
		logger:       slog.Default().With("component", "vault"),
		now:          time.Now,
	}
}

// Unlock reads and decrypts the persisted blob, populating the in-memory
// keyring. A missing blob yields an empty keyring. An unreadable blob also
// yields an empty, fully usable keyring alongside ErrVaultCorrupt so the
// caller can decide to discard it.
func (v *Vault) Unlock(ctx context.Context) (Keyring, error) {
	blob, err := v.blobs.GetVaultBlob(ctx)
	if errors.Is(err, store.ErrNotFound) {
		v.keyring = Keyring{}
		return v.keyring.clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading vault blob: %w", err)
	}

	keyring, err := v.decode(blob, v.deviceSecret)
	if err != nil {
		v.logger.Warn("vault blob unreadable, treating as empty", "error", err)
		v.keyring = Keyring{}
		return v.keyring.clone(), fmt.Errorf("%w: %v", ErrVaultCorrupt, err)
	}

	v.keyring = keyring
	v.logger.Debug("vault unlocked", "entries", len(keyring))
	return v.keyring.clone(), nil
}

// Keyring returns a snapshot of the current in-memory keyring.
func (v *Vault) Keyring() Keyring {
	return v.keyring.clone()
}

// Persist serializes and encrypts the given keyring and overwrites the blob.
// On success the keyring becomes the vault's in-memory state.
func (v *Vault) Persist(ctx context.Context, keyring Keyring) error {
	blob, err := v.encode(keyring, v.deviceSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if err := v.blobs.PutVaultBlob(ctx, blob); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	v.keyring = keyring.clone()
	return nil
}

// SetKey inserts or replaces the entry for a provider and persists.
// Returns the new full keyring; on persist failure the in-memory keyring is
// unchanged.
func (v *Vault) SetKey(ctx context.Context, provider Provider, secret, label string) (Keyring, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	updated := v.keyring.clone()
	updated[provider] = &Entry{
		Key:       secret,
		Label:     label,
		CreatedAt: v.now().UTC(),
	}

	if err := v.Persist(ctx, updated); err != nil {
		return nil, err
	}
	v.logger.Debug("set provider key", "provider", provider)
	return v.keyring.clone(), nil
}

// RemoveKey clears the entry for a provider and persists.
func (v *Vault) RemoveKey(ctx context.Context, provider Provider) (Keyring, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	updated := v.keyring.clone()
	delete(updated, provider)

	if err := v.Persist(ctx, updated); err != nil {
		return nil, err
	}
	v.logger.Debug("removed provider key", "provider", provider)
	return v.keyring.clone(), nil
}

// TouchLastUsed stamps the provider's last_used_at and persists.
// No-op if the provider has no entry.
func (v *Vault) TouchLastUsed(ctx context.Context, provider Provider) (Keyring, error) {
	if _, ok := v.keyring[provider]; !ok {
		return v.keyring.clone(), nil
	}

	updated := v.keyring.clone()
	ts := v.now().UTC()
	updated[provider].LastUsedAt = &ts

	if err := v.Persist(ctx, updated); err != nil {
		return nil, err
	}
	return v.keyring.clone(), nil
}

// ExportBlob re-encrypts the current keyring under the device secret and
// returns the self-contained blob. The result is only portable to a holder
// of the same device key material.
func (v *Vault) ExportBlob() (string, error) {
	blob, err := v.encode(v.keyring, v.deviceSecret)
	if err != nil {
		return "", fmt.Errorf("exporting vault: %w", err)
	}
	return blob, nil
}

// ImportBlob decrypts an externally supplied blob with the caller-supplied
// passphrase and merges its entries into the current keyring: imported
// entries overwrite same-provider local entries, providers absent from the
// import are left untouched. The merged keyring is persisted and returned.
func (v *Vault) ImportBlob(ctx context.Context, blob, passphrase string) (Keyring, error) {
	imported, err := v.decode(blob, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}

	merged := v.keyring.clone()
	for provider, entry := range imported {
		if !provider.Valid() {
			v.logger.Warn("skipping unknown provider in import", "provider", provider)
			continue
		}
		merged[provider] = entry
	}

	if err := v.Persist(ctx, merged); err != nil {
		return nil, err
	}
	v.logger.Info("imported vault blob", "entries", len(imported))
	return v.keyring.clone(), nil
}

// encode serializes and encrypts a keyring under the given key material
func (v *Vault) encode(keyring Keyring, secret []byte) (string, error) {
	plaintext, err := json.Marshal(keyring)
	if err != nil {
		return "", fmt.Errorf("encoding keyring: %w", err)
	}
	return seal(secret, plaintext)
}

// decode decrypts and parses a blob with the given key material
func (v *Vault) decode(blob string, secret []byte) (Keyring, error) {
	plaintext, err := open(secret, blob)
	if err != nil {
		return nil, err
	}

	var keyring Keyring
	if err := json.Unmarshal(plaintext, &keyring); err != nil {
		return nil, fmt.Errorf("parsing keyring: %w", err)
	}
	if keyring == nil {
		keyring = Keyring{}
	}
	return keyring, nil
}
