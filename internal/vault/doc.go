// Package vault stores provider API keys encrypted at rest.
//
// # Model
//
// The vault keeps a Keyring (provider -> entry, at most one entry per
// provider) in memory and mirrors every mutation to a single encrypted blob
// in local storage. The blob is AES-256-GCM sealed under a key stretched
// with scrypt from device-bound key material; the salt and nonce travel
// inside the blob, so it is self-contained.
//
// # Key material
//
// Two sources of key material exist and are kept deliberately separate:
//
//   - the device secret (random, generated on first use, never shown to the
//     user) seals the local blob and exports
//   - a caller-supplied passphrase unseals imported blobs from other devices
//
// # Failure policy
//
//   - Unlock on a corrupt blob returns an empty usable keyring together with
//     ErrVaultCorrupt; the caller discards the blob rather than failing
//   - ImportBlob on a bad blob or wrong passphrase fails with ErrImportFailed
//   - any persist failure returns ErrPersistFailed and leaves the in-memory
//     keyring exactly as it was
//
// The blob is a single-writer resource; callers serialize mutations.
package vault
