package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	CodeChallengeMethodS256 = "S256"

	codeVerifierBytes   = 32
	handshakeStateBytes = 24
)

// GenerateCodeVerifier returns a 43-character base64url token, the RFC 7636
// minimum verifier length.
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, codeVerifierBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("core: generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeS256 derives the S256 code challenge for a verifier:
// base64url(sha256(verifier)) without padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateHandshakeState returns the CSRF state token that keys a pending
// handshake.
func GenerateHandshakeState() (string, error) {
	buf := make([]byte, handshakeStateBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("core: generate handshake state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
