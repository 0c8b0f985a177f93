package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
)

func newConnectionRecord(in core.UpsertConnectionInput, now time.Time) *connectionRecord {
	return &connectionRecord{
		TenantID:          strings.TrimSpace(in.TenantID),
		ConnectorID:       strings.TrimSpace(in.ConnectorID),
		Name:              strings.TrimSpace(in.Name),
		AuthMethod:        string(in.AuthMethod),
		Status:            string(in.Status),
		Settings:          copyAnyMap(in.Settings),
		ExternalAccountID: strings.TrimSpace(in.ExternalAccountID),
		LastError:         "",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *connectionRecord) toDomain() core.Connection {
	if r == nil {
		return core.Connection{}
	}
	return core.Connection{
		ID:                r.ID,
		TenantID:          r.TenantID,
		ConnectorID:       r.ConnectorID,
		Name:              r.Name,
		AuthMethod:        core.AuthMethod(r.AuthMethod),
		Status:            core.ConnectionStatus(r.Status),
		Settings:          copyAnyMap(r.Settings),
		ExternalAccountID: r.ExternalAccountID,
		LastError:         r.LastError,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func newCredentialRecord(in core.SaveCredentialInput, version int, now time.Time) *credentialRecord {
	payloadFormat := strings.TrimSpace(in.PayloadFormat)
	if payloadFormat == "" {
		payloadFormat = core.CredentialPayloadFormatJSONV1
	}
	payloadVersion := in.PayloadVersion
	if payloadVersion <= 0 {
		payloadVersion = core.CredentialPayloadVersionV1
	}
	record := &credentialRecord{
		ConnectionID:      strings.TrimSpace(in.ConnectionID),
		Version:           version,
		EncryptedPayload:  append([]byte(nil), in.EncryptedPayload...),
		PayloadFormat:     payloadFormat,
		PayloadVersion:    payloadVersion,
		TokenType:         strings.TrimSpace(in.TokenType),
		RequestedScopes:   copyStringSlice(in.RequestedScopes),
		GrantedScopes:     copyStringSlice(in.GrantedScopes),
		Refreshable:       in.Refreshable,
		Status:            string(in.Status),
		EncryptionKeyID:   strings.TrimSpace(in.EncryptionKeyID),
		EncryptionVersion: in.EncryptionVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.ExpiresAt != nil {
		expiresAt := in.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	if in.RotatesAt != nil {
		rotatesAt := in.RotatesAt.UTC()
		record.RotatesAt = &rotatesAt
	}
	return record
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	credential := core.Credential{
		ID:               r.ID,
		ConnectionID:     r.ConnectionID,
		Version:          r.Version,
		EncryptedPayload: append([]byte(nil), r.EncryptedPayload...),
		PayloadFormat:    r.PayloadFormat,
		PayloadVersion:   r.PayloadVersion,
		TokenType:        r.TokenType,
		RequestedScopes:  copyStringSlice(r.RequestedScopes),
		GrantedScopes:    copyStringSlice(r.GrantedScopes),
		Refreshable:      r.Refreshable,
		Status:           core.CredentialStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		expiresAt := *r.ExpiresAt
		credential.ExpiresAt = &expiresAt
	}
	if r.RotatesAt != nil {
		rotatesAt := *r.RotatesAt
		credential.RotatesAt = &rotatesAt
	}
	return credential
}

func newSyncStateRecord(in core.PutSyncStateInput, now time.Time) *syncStateRecord {
	return &syncStateRecord{
		TenantID:     strings.TrimSpace(in.TenantID),
		ConnectionID: strings.TrimSpace(in.ConnectionID),
		Cursor:       in.Cursor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *syncStateRecord) toDomain() core.SyncState {
	if r == nil {
		return core.SyncState{}
	}
	return core.SyncState{
		ID:           r.ID,
		TenantID:     r.TenantID,
		ConnectionID: r.ConnectionID,
		Cursor:       r.Cursor,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func newAuditEntryRecord(entry core.AuditEntry) *auditEntryRecord {
	return &auditEntryRecord{
		ID:            strings.TrimSpace(entry.ID),
		TenantID:      strings.TrimSpace(entry.TenantID),
		Actor:         strings.TrimSpace(entry.Actor),
		Action:        strings.TrimSpace(entry.Action),
		ConnectorID:   strings.TrimSpace(entry.ConnectorID),
		ConnectionID:  strings.TrimSpace(entry.ConnectionID),
		TargetType:    strings.TrimSpace(entry.TargetType),
		TargetID:      strings.TrimSpace(entry.TargetID),
		Outcome:       string(entry.Outcome),
		Error:         entry.Error,
		CorrelationID: strings.TrimSpace(entry.CorrelationID),
		Metadata:      RedactMetadata(entry.Metadata),
		CreatedAt:     entry.CreatedAt,
	}
}

func (r *auditEntryRecord) toDomain() core.AuditEntry {
	if r == nil {
		return core.AuditEntry{}
	}
	return core.AuditEntry{
		ID:            r.ID,
		TenantID:      r.TenantID,
		Actor:         r.Actor,
		Action:        r.Action,
		ConnectorID:   r.ConnectorID,
		ConnectionID:  r.ConnectionID,
		TargetType:    r.TargetType,
		TargetID:      r.TargetID,
		Outcome:       core.AuditOutcome(r.Outcome),
		Error:         r.Error,
		CorrelationID: r.CorrelationID,
		Metadata:      copyAnyMap(r.Metadata),
		CreatedAt:     r.CreatedAt,
	}
}

func newHandshakeRecord(record core.HandshakeRecord) *handshakeRecord {
	return &handshakeRecord{
		State:          strings.TrimSpace(record.State),
		TenantID:       strings.TrimSpace(record.TenantID),
		ConnectorID:    strings.TrimSpace(record.ConnectorID),
		ConnectionName: strings.TrimSpace(record.ConnectionName),
		RedirectURI:    strings.TrimSpace(record.RedirectURI),
		Scopes:         copyStringSlice(record.Scopes),
		CodeVerifier:   record.CodeVerifier,
		CodeChallenge:  record.CodeChallenge,
		Settings:       copyAnyMap(record.Settings),
		Metadata:       copyAnyMap(record.Metadata),
		CreatedAt:      record.CreatedAt.UTC(),
		ExpiresAt:      record.ExpiresAt.UTC(),
	}
}

func (r *handshakeRecord) toDomain() core.HandshakeRecord {
	if r == nil {
		return core.HandshakeRecord{}
	}
	return core.HandshakeRecord{
		State:          r.State,
		TenantID:       r.TenantID,
		ConnectorID:    r.ConnectorID,
		ConnectionName: r.ConnectionName,
		RedirectURI:    r.RedirectURI,
		Scopes:         copyStringSlice(r.Scopes),
		CodeVerifier:   r.CodeVerifier,
		CodeChallenge:  r.CodeChallenge,
		Settings:       copyAnyMap(r.Settings),
		Metadata:       copyAnyMap(r.Metadata),
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

func newJobRecord(in core.CreateJobInput, now time.Time) *jobRecord {
	return &jobRecord{
		TenantID:     strings.TrimSpace(in.TenantID),
		ConnectorID:  strings.TrimSpace(in.ConnectorID),
		ConnectionID: strings.TrimSpace(in.ConnectionID),
		Kind:         string(in.Kind),
		Status:       string(core.JobStatusQueued),
		Progress:     0,
		Parameters:   copyAnyMap(in.Parameters),
		Result:       map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *jobRecord) toDomain() core.Job {
	if r == nil {
		return core.Job{}
	}
	return core.Job{
		ID:           r.ID,
		TenantID:     r.TenantID,
		ConnectorID:  r.ConnectorID,
		ConnectionID: r.ConnectionID,
		Kind:         core.JobKind(r.Kind),
		Status:       core.JobStatus(r.Status),
		Progress:     r.Progress,
		Parameters:   copyAnyMap(r.Parameters),
		Result:       copyAnyMap(r.Result),
		LastError:    r.LastError,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringSlice(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}
