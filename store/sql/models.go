package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type connectionRecord struct {
	bun.BaseModel `bun:"table:connector_connections,alias:cc"`

	ID                string         `bun:"id,pk"`
	TenantID          string         `bun:"tenant_id,notnull"`
	ConnectorID       string         `bun:"connector_id,notnull"`
	Name              string         `bun:"name,notnull"`
	AuthMethod        string         `bun:"auth_method,notnull"`
	Status            string         `bun:"status,notnull"`
	Settings          map[string]any `bun:"settings,type:jsonb,notnull"`
	ExternalAccountID string         `bun:"external_account_id"`
	LastError         string         `bun:"last_error"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:connector_credentials,alias:ccr"`

	ID                string     `bun:"id,pk"`
	ConnectionID      string     `bun:"connection_id,notnull"`
	Version           int        `bun:"version,notnull"`
	EncryptedPayload  []byte     `bun:"encrypted_payload,notnull"`
	PayloadFormat     string     `bun:"payload_format,notnull"`
	PayloadVersion    int        `bun:"payload_version,notnull"`
	TokenType         string     `bun:"token_type,notnull"`
	RequestedScopes   []string   `bun:"requested_scopes,type:jsonb,notnull"`
	GrantedScopes     []string   `bun:"granted_scopes,type:jsonb,notnull"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	RotatesAt         *time.Time `bun:"rotates_at,nullzero"`
	Refreshable       bool       `bun:"refreshable,notnull"`
	Status            string     `bun:"status,notnull"`
	EncryptionKeyID   string     `bun:"encryption_key_id,notnull"`
	EncryptionVersion int        `bun:"encryption_version,notnull"`
	RevocationReason  string     `bun:"revocation_reason,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncStateRecord struct {
	bun.BaseModel `bun:"table:connector_sync_states,alias:css"`

	ID           string    `bun:"id,pk"`
	TenantID     string    `bun:"tenant_id,notnull"`
	ConnectionID string    `bun:"connection_id,notnull"`
	Cursor       string    `bun:"cursor"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditEntryRecord struct {
	bun.BaseModel `bun:"table:connector_audit_entries,alias:cae"`

	ID            string         `bun:"id,pk"`
	TenantID      string         `bun:"tenant_id,notnull"`
	Actor         string         `bun:"actor,notnull"`
	Action        string         `bun:"action,notnull"`
	ConnectorID   string         `bun:"connector_id"`
	ConnectionID  string         `bun:"connection_id"`
	TargetType    string         `bun:"target_type"`
	TargetID      string         `bun:"target_id"`
	Outcome       string         `bun:"outcome,notnull"`
	Error         string         `bun:"error"`
	CorrelationID string         `bun:"correlation_id"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type handshakeRecord struct {
	bun.BaseModel `bun:"table:connector_handshakes,alias:chs"`

	ID             string         `bun:"id,pk"`
	State          string         `bun:"state,notnull"`
	TenantID       string         `bun:"tenant_id,notnull"`
	ConnectorID    string         `bun:"connector_id,notnull"`
	ConnectionName string         `bun:"connection_name"`
	RedirectURI    string         `bun:"redirect_uri,notnull"`
	Scopes         []string       `bun:"scopes,type:jsonb,notnull"`
	CodeVerifier   string         `bun:"code_verifier,notnull"`
	CodeChallenge  string         `bun:"code_challenge,notnull"`
	Settings       map[string]any `bun:"settings,type:jsonb,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt      time.Time      `bun:"expires_at,notnull"`
	ConsumedAt     *time.Time     `bun:"consumed_at,nullzero"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:connector_jobs,alias:cj"`

	ID           string         `bun:"id,pk"`
	TenantID     string         `bun:"tenant_id,notnull"`
	ConnectorID  string         `bun:"connector_id,notnull"`
	ConnectionID string         `bun:"connection_id,notnull"`
	Kind         string         `bun:"kind,notnull"`
	Status       string         `bun:"status,notnull"`
	Progress     int            `bun:"progress,notnull"`
	Parameters   map[string]any `bun:"parameters,type:jsonb,notnull"`
	Result       map[string]any `bun:"result,type:jsonb,notnull"`
	LastError    string         `bun:"last_error"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:connector_rate_limit_states,alias:crls"`

	ID          string         `bun:"id,pk"`
	ConnectorID string         `bun:"connector_id,notnull"`
	TenantID    string         `bun:"tenant_id,notnull"`
	BucketKey   string         `bun:"bucket_key,notnull"`
	Limit       int            `bun:"limit_total,notnull"`
	Remaining   int            `bun:"remaining,notnull"`
	ResetAt     *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter  *int           `bun:"retry_after_seconds,nullzero"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
