package vault

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
)

// Environment variables consumed by NewVaultFromEnv:
// EVIDENTRY_ENCRYPTION_KEY (64 hex chars), EVIDENTRY_ENV.
const (
	envEncryptionKey = "EVIDENTRY_ENCRYPTION_KEY"
	envEnvironment   = "EVIDENTRY_ENV"
)

// devFallbackKey is only ever used when EVIDENTRY_ENV=development and no
// real key is configured. It provides zero protection.
const devFallbackKey = "65766964656e7472792d6465762d6f6e6c792d696e7365637572652d6b657921"

// NewVaultFromEnv builds a Vault from the process environment. The key is
// 64 hex characters (32 bytes). A missing or malformed key is fatal except
// in a development environment, where an insecure fixed key is used and a
// loud warning is logged.
func NewVaultFromEnv(logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw := os.Getenv(envEncryptionKey)
	if raw == "" {
		if os.Getenv(envEnvironment) != "development" {
			return nil, fmt.Errorf("%s is not set; refusing to start without an encryption key outside development", envEncryptionKey)
		}
		logger.Warn("SECURITY: no encryption key configured, using the insecure development fallback key; credentials are NOT protected",
			"env", envEncryptionKey)
		raw = devFallbackKey
	}

	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", envEncryptionKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", envEncryptionKey, len(key))
	}

	return NewVault(key)
}
