// Package vault provides authenticated encryption for integration
// credentials at rest. Credentials are sealed with AES-256-GCM under a
// process-wide 32-byte key and stored as a self-describing JSON envelope.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	envelopeAlgorithm = "aes-256-gcm"
	envelopeVersion   = 1
	gcmTagSize        = 16
)

// DecryptionError reports a failed decrypt: a malformed envelope, a failed
// authentication tag check (tamper or wrong key), or undecodable plaintext.
// It is distinct from connection failures so operators can tell "bad
// credentials" apart from "corrupted storage".
type DecryptionError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential decryption failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("credential decryption failed: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error { return e.Err }

// envelope is the stored form of an encrypted credential blob. All binary
// fields are base64 encoded. The ciphertext excludes the GCM tag, which is
// carried separately in AuthTag.
type envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	AuthTag    string `json:"authTag"`
	Algorithm  string `json:"algorithm"`
	Version    int    `json:"version"`
}

// Vault encrypts and decrypts credential maps. Construct one at process
// start with NewVault and pass it by reference to the components that need
// it; it is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// NewVault creates a Vault from a 32-byte AES-256 key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals a credential map into an opaque envelope string. A fresh
// random nonce is generated per call. The plaintext never appears in logs
// or errors.
func (v *Vault) Encrypt(credentials map[string]string) (string, error) {
	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	env := envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Algorithm:  envelopeAlgorithm,
		Version:    envelopeVersion,
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(out), nil
}

// Decrypt opens an envelope string produced by Encrypt and returns the
// credential map. It returns a *DecryptionError when the envelope is
// malformed, the authentication tag fails, or the plaintext is not a valid
// credential map.
func (v *Vault) Decrypt(blob string) (map[string]string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return nil, &DecryptionError{Reason: "malformed envelope", Err: err}
	}
	if env.Algorithm != envelopeAlgorithm {
		return nil, &DecryptionError{Reason: fmt.Sprintf("unsupported algorithm %q", env.Algorithm)}
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed ciphertext", Err: err}
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed nonce", Err: err}
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed auth tag", Err: err}
	}
	if len(nonce) != v.aead.NonceSize() {
		return nil, &DecryptionError{Reason: "invalid nonce length"}
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication failed", Err: err}
	}

	var credentials map[string]string
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		return nil, &DecryptionError{Reason: "invalid credential payload", Err: err}
	}
	return credentials, nil
}

// SelfTest round-trips a sentinel payload. Used by readiness probes to
// verify the vault key is usable.
func (v *Vault) SelfTest() error {
	sentinel := map[string]string{"probe": "evidentry-vault-selftest"}

	sealed, err := v.Encrypt(sentinel)
	if err != nil {
		return fmt.Errorf("self test encrypt: %w", err)
	}
	opened, err := v.Decrypt(sealed)
	if err != nil {
		return fmt.Errorf("self test decrypt: %w", err)
	}
	if opened["probe"] != sentinel["probe"] {
		return errors.New("self test round trip mismatch")
	}
	return nil
}
