package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// FetchCredentialPlaintext decrypts and returns a connection's active
// credential. The operation is disabled unless vault.allow_plaintext_fetch
// is set, and every call lands in the audit trail, denied ones included.
// The returned value is the caller's to forget; nothing is cached.
func (s *Service) FetchCredentialPlaintext(ctx context.Context, req FetchCredentialRequest) (credential ActiveCredential, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "fetch_credential_plaintext", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "credential.read",
			ConnectionID: req.ConnectionID,
			TargetType:   "credential",
			TargetID:     req.ConnectionID,
		}, err)
	}()

	if !s.config.Vault.AllowPlaintextFetch {
		wrapped := s.errorFactory(
			"plaintext credential fetch is disabled",
			goerrors.CategoryAuthz,
		).WithTextCode(ConnectorErrorAuthFailed)
		err = ensureConnectorErrorEnvelope(wrapped)
		return ActiveCredential{}, err
	}

	connection, err := s.getConnection(ctx, req.TenantID, req.ConnectionID)
	if err != nil {
		return ActiveCredential{}, err
	}
	credential, err = s.activeCredential(ctx, connection)
	if err != nil {
		return ActiveCredential{}, err
	}
	return credential, nil
}
