package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	envelopePrefix    = "connectors.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

// envelope is the JSON payload stored as the credential ciphertext. It
// carries its own key id and version so rotation never needs a schema
// change; the stored bytes say which key sealed them.
type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type Option func(*AppKeyVault)

func WithKeyID(id string) Option {
	return func(vault *AppKeyVault) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			vault.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(vault *AppKeyVault) {
		if version > 0 {
			vault.version = version
		}
	}
}

// AppKeyVault seals credential payloads with AES-256-GCM under a single
// application key. Key material of exactly 16, 24, or 32 bytes is used as
// is; anything else is run through SHA-256 so passphrase style keys work.
type AppKeyVault struct {
	key     []byte
	keyID   string
	version int
	mode    core.VaultMode
}

func NewAppKeyVault(keyMaterial []byte, opts ...Option) (*AppKeyVault, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	vault := &AppKeyVault{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
		mode:    core.VaultModePersistent,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(vault)
	}
	return vault, nil
}

func NewAppKeyVaultFromString(key string, opts ...Option) (*AppKeyVault, error) {
	return NewAppKeyVault([]byte(key), opts...)
}

// NewEphemeralVault generates a random key that lives only in process
// memory. Everything it encrypts becomes unreadable on restart, which is
// acceptable for development and fatal for anything else; the service logs
// a warning when it sees one.
func NewEphemeralVault(opts ...Option) (*AppKeyVault, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("security: ephemeral key generation failed: %w", err)
	}
	vault := &AppKeyVault{
		key:     key,
		keyID:   "ephemeral",
		version: 1,
		mode:    core.VaultModeEphemeral,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(vault)
	}
	return vault, nil
}

// NewVaultFromConfig builds the vault the service configuration describes:
// a persistent app key vault when vault.key is set, an ephemeral one when
// it is not.
func NewVaultFromConfig(cfg core.VaultConfig) (core.SecretVault, error) {
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		return NewEphemeralVault()
	}
	opts := []Option{}
	if strings.TrimSpace(cfg.KeyID) != "" {
		opts = append(opts, WithKeyID(cfg.KeyID))
	}
	return NewAppKeyVaultFromString(key, opts...)
}

func (v *AppKeyVault) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("security: vault is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	data, err := json.Marshal(envelope{
		KeyID:      v.keyID,
		Version:    v.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}

	return append([]byte(envelopePrefix), data...), nil
}

func (v *AppKeyVault) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("security: vault is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}

	payload := string(ciphertext)
	if !strings.HasPrefix(payload, envelopePrefix) {
		return nil, fmt.Errorf("security: invalid ciphertext envelope prefix")
	}
	payload = strings.TrimPrefix(payload, envelopePrefix)

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.KeyID != "" && parsed.KeyID != v.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, v.keyID)
	}
	if parsed.Version > 0 && parsed.Version != v.version {
		return nil, fmt.Errorf("security: key version mismatch: got %d want %d", parsed.Version, v.version)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}

	// gcm.Open panics on a wrong-size nonce, so a corrupted envelope has
	// to be rejected here like any other tampered field.
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: decrypt payload: bad nonce length %d, want %d", len(nonce), gcm.NonceSize())
	}
	if len(sealed) < gcm.Overhead() {
		return nil, fmt.Errorf("security: ciphertext payload too short: got %d bytes", len(sealed))
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (v *AppKeyVault) Mode() core.VaultMode {
	if v == nil {
		return core.VaultModeEphemeral
	}
	return v.mode
}

func (v *AppKeyVault) KeyID() string {
	if v == nil {
		return ""
	}
	return v.keyID
}

func (v *AppKeyVault) Version() int {
	if v == nil {
		return 0
	}
	return v.version
}

func (v *AppKeyVault) Metadata() (string, int) {
	return v.KeyID(), v.Version()
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretVault = (*AppKeyVault)(nil)
