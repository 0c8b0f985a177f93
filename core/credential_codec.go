package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatAPIKey = "api_key_raw"
	CredentialPayloadFormatJSONV1 = "connector_credential_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec turns an ActiveCredential into the plaintext payload the
// vault encrypts, and back. Format and Version are persisted alongside the
// ciphertext so old rows stay decodable.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential ActiveCredential) ([]byte, error)
	Decode(payload []byte) (ActiveCredential, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	ConnectionID    string         `json:"connection_id,omitempty"`
	TokenType       string         `json:"token_type,omitempty"`
	AccessToken     string         `json:"access_token,omitempty"`
	RefreshToken    string         `json:"refresh_token,omitempty"`
	RequestedScopes []string       `json:"requested_scopes,omitempty"`
	GrantedScopes   []string       `json:"granted_scopes,omitempty"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	Refreshable     bool           `json:"refreshable"`
	RotatesAt       *time.Time     `json:"rotates_at,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (JSONCredentialCodec) Encode(credential ActiveCredential) ([]byte, error) {
	payload := jsonCredentialPayload{
		ConnectionID:    strings.TrimSpace(credential.ConnectionID),
		TokenType:       strings.TrimSpace(credential.TokenType),
		AccessToken:     strings.TrimSpace(credential.AccessToken),
		RefreshToken:    strings.TrimSpace(credential.RefreshToken),
		RequestedScopes: append([]string(nil), credential.RequestedScopes...),
		GrantedScopes:   append([]string(nil), credential.GrantedScopes...),
		ExpiresAt:       cloneTimePointer(credential.ExpiresAt),
		Refreshable:     credential.Refreshable,
		RotatesAt:       cloneTimePointer(credential.RotatesAt),
		Metadata:        copyAnyMap(credential.Metadata),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (ActiveCredential, error) {
	if len(payload) == 0 {
		return ActiveCredential{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ActiveCredential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return ActiveCredential{
		ConnectionID:    strings.TrimSpace(decoded.ConnectionID),
		TokenType:       strings.TrimSpace(decoded.TokenType),
		AccessToken:     strings.TrimSpace(decoded.AccessToken),
		RefreshToken:    strings.TrimSpace(decoded.RefreshToken),
		RequestedScopes: append([]string(nil), decoded.RequestedScopes...),
		GrantedScopes:   append([]string(nil), decoded.GrantedScopes...),
		ExpiresAt:       cloneTimePointer(decoded.ExpiresAt),
		Refreshable:     decoded.Refreshable,
		RotatesAt:       cloneTimePointer(decoded.RotatesAt),
		Metadata:        copyAnyMap(decoded.Metadata),
	}, nil
}

// APIKeyCredentialCodec stores the key material as a bare payload. Used for
// api_key connections where the whole credential is a single opaque string.
type APIKeyCredentialCodec struct{}

func (APIKeyCredentialCodec) Format() string {
	return CredentialPayloadFormatAPIKey
}

func (APIKeyCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

func (APIKeyCredentialCodec) Encode(credential ActiveCredential) ([]byte, error) {
	key := strings.TrimSpace(credential.AccessToken)
	if key == "" {
		return nil, fmt.Errorf("core: api key credential payload requires a key")
	}
	return []byte(key), nil
}

func (APIKeyCredentialCodec) Decode(payload []byte) (ActiveCredential, error) {
	key := strings.TrimSpace(string(payload))
	if key == "" {
		return ActiveCredential{}, fmt.Errorf("core: api key credential payload is empty")
	}
	return ActiveCredential{
		TokenType:   string(AuthMethodAPIKey),
		AccessToken: key,
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
