package vault

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewVault(key)
	require.NoError(t, err)
	return v
}

func TestNewVaultRejectsShortKey(t *testing.T) {
	_, err := NewVault([]byte("too-short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)

	creds := map[string]string{
		"token":  "ghp_secret",
		"apiKey": "with spaces and ünïcode",
	}
	blob, err := v.Encrypt(creds)
	require.NoError(t, err)

	opened, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, creds, opened)
}

func TestEncryptProducesSelfDescribingEnvelope(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt(map[string]string{"token": "x"})
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(blob), &env))
	assert.Equal(t, "aes-256-gcm", env["algorithm"])
	assert.Equal(t, float64(1), env["version"])
	assert.NotEmpty(t, env["ciphertext"])
	assert.NotEmpty(t, env["nonce"])
	assert.NotEmpty(t, env["authTag"])
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	v := newTestVault(t)

	blob1, err := v.Encrypt(map[string]string{"token": "x"})
	require.NoError(t, err)
	blob2, err := v.Encrypt(map[string]string{"token": "x"})
	require.NoError(t, err)
	assert.NotEqual(t, blob1, blob2)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt(map[string]string{"token": "secret"})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(blob), &env))

	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xff
	env.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = v.Decrypt(string(tampered))
	require.Error(t, err)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "authentication failed", decErr.Reason)
}

func TestDecryptRejectsTamperedAuthTag(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt(map[string]string{"token": "secret"})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(blob), &env))

	raw, err := base64.StdEncoding.DecodeString(env.AuthTag)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	env.AuthTag = base64.StdEncoding.EncodeToString(raw)

	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = v.Decrypt(string(tampered))
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "authentication failed", decErr.Reason)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	v1 := newTestVault(t)

	otherKey := make([]byte, 32)
	for i := range otherKey {
		otherKey[i] = byte(255 - i)
	}
	v2, err := NewVault(otherKey)
	require.NoError(t, err)

	blob, err := v1.Encrypt(map[string]string{"token": "secret"})
	require.NoError(t, err)

	_, err = v2.Decrypt(blob)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "authentication failed", decErr.Reason)
}

func TestDecryptRejectsMalformedEnvelope(t *testing.T) {
	v := newTestVault(t)

	for _, blob := range []string{"", "not json", "{}", `{"algorithm":"rot13"}`} {
		_, err := v.Decrypt(blob)
		var decErr *DecryptionError
		require.ErrorAs(t, err, &decErr, "blob %q", blob)
	}
}

func TestDecryptRejectsBadNonceLength(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt(map[string]string{"token": "secret"})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(blob), &env))
	env.Nonce = base64.StdEncoding.EncodeToString([]byte{1, 2, 3})

	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = v.Decrypt(string(tampered))
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "invalid nonce length", decErr.Reason)
}

func TestSelfTest(t *testing.T) {
	v := newTestVault(t)
	assert.NoError(t, v.SelfTest())
}

func TestNewVaultFromEnvWithKey(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}
	t.Setenv(envEncryptionKey, hex.EncodeToString(key))

	v, err := NewVaultFromEnv(nil)
	require.NoError(t, err)
	assert.NoError(t, v.SelfTest())
}

func TestNewVaultFromEnvMissingKeyOutsideDevelopment(t *testing.T) {
	t.Setenv(envEncryptionKey, "")
	t.Setenv(envEnvironment, "production")

	_, err := NewVaultFromEnv(nil)
	require.Error(t, err)
}

func TestNewVaultFromEnvDevelopmentFallback(t *testing.T) {
	t.Setenv(envEncryptionKey, "")
	t.Setenv(envEnvironment, "development")

	v, err := NewVaultFromEnv(nil)
	require.NoError(t, err)
	assert.NoError(t, v.SelfTest())
}

func TestNewVaultFromEnvRejectsBadKeys(t *testing.T) {
	t.Setenv(envEnvironment, "production")

	t.Setenv(envEncryptionKey, "not-hex")
	_, err := NewVaultFromEnv(nil)
	require.Error(t, err)

	t.Setenv(envEncryptionKey, "abcd")
	_, err = NewVaultFromEnv(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}
