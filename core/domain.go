package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrConnectionNotFound                = errors.New("core: connection not found")
	ErrSyncStateNotFound                 = errors.New("core: sync state not found")
	ErrJobNotFound                       = errors.New("core: job not found")
	ErrInvalidConnectionStatusTransition = errors.New("core: invalid connection status transition")
	ErrInvalidJobStatusTransition        = errors.New("core: invalid job status transition")
)

type ConnectionStatus string

const (
	ConnectionStatusPending   ConnectionStatus = "pending"
	ConnectionStatusConnected ConnectionStatus = "connected"
	ConnectionStatusInvalid   ConnectionStatus = "invalid"
	ConnectionStatusRevoked   ConnectionStatus = "revoked"
)

// Connection binds one tenant to one connector under a display name. The
// triple (tenant, connector, name) is the upsert identity; Settings carries
// opaque connector configuration such as the base URL.
type Connection struct {
	ID                string
	TenantID          string
	ConnectorID       string
	Name              string
	AuthMethod        AuthMethod
	Status            ConnectionStatus
	Settings          map[string]any
	ExternalAccountID string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (c *Connection) Validate() error {
	if c == nil {
		return fmt.Errorf("core: connection is required")
	}
	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("core: connection tenant id is required")
	}
	if strings.TrimSpace(c.ConnectorID) == "" {
		return fmt.Errorf("core: connection connector id is required")
	}
	return nil
}

// TransitionTo moves the connection to the next status. Repeating the
// current status only touches UpdatedAt, which is what makes Revoke
// idempotent. Revoked is terminal.
func (c *Connection) TransitionTo(status ConnectionStatus, reason string, now time.Time) error {
	if c == nil {
		return fmt.Errorf("core: connection is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if c.Status == status {
		c.UpdatedAt = now
		return nil
	}
	if !connectionTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidConnectionStatusTransition, c.Status, status)
	}
	c.Status = status
	switch status {
	case ConnectionStatusInvalid, ConnectionStatusRevoked:
		c.LastError = strings.TrimSpace(reason)
	case ConnectionStatusConnected:
		c.LastError = ""
	}
	c.UpdatedAt = now
	return nil
}

func connectionTransitionAllowed(current, next ConnectionStatus) bool {
	allowed := map[ConnectionStatus]map[ConnectionStatus]struct{}{
		ConnectionStatusPending: {
			ConnectionStatusConnected: {},
			ConnectionStatusInvalid:   {},
			ConnectionStatusRevoked:   {},
		},
		ConnectionStatusConnected: {
			ConnectionStatusPending: {},
			ConnectionStatusInvalid: {},
			ConnectionStatusRevoked: {},
		},
		ConnectionStatusInvalid: {
			ConnectionStatusPending:   {},
			ConnectionStatusConnected: {},
			ConnectionStatusRevoked:   {},
		},
		ConnectionStatusRevoked: {},
	}
	targets, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRevoked CredentialStatus = "revoked"
	CredentialStatusExpired CredentialStatus = "expired"
)

// Credential stores only ciphertext. The encryption envelope embedded in
// EncryptedPayload carries its own key id and key version, so key rotation
// never requires a schema change.
type Credential struct {
	ID               string
	ConnectionID     string
	Version          int
	EncryptedPayload []byte
	PayloadFormat    string
	PayloadVersion   int
	TokenType        string
	RequestedScopes  []string
	GrantedScopes    []string
	ExpiresAt        *time.Time
	Refreshable      bool
	RotatesAt        *time.Time
	Status           CredentialStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SyncState holds the incremental cursor for one connection. A connection
// with no row at all is reported through ErrSyncStateNotFound; an empty
// Cursor on an existing row is a legal stored value and means something
// different to callers.
type SyncState struct {
	ID           string
	TenantID     string
	ConnectionID string
	Cursor       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type JobKind string

const (
	JobKindImport JobKind = "import"
	JobKindSync   JobKind = "sync"
	JobKindProbe  JobKind = "probe"
)

func ParseJobKind(value string) (JobKind, error) {
	kind := JobKind(strings.TrimSpace(strings.ToLower(value)))
	switch kind {
	case JobKindImport, JobKindSync, JobKindProbe:
		return kind, nil
	}
	return "", fmt.Errorf("core: invalid job kind %q", value)
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type Job struct {
	ID           string
	TenantID     string
	ConnectorID  string
	ConnectionID string
	Kind         JobKind
	Status       JobStatus
	Progress     int
	Parameters   map[string]any
	Result       map[string]any
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (j *Job) TransitionTo(status JobStatus, reason string, now time.Time) error {
	if j == nil {
		return fmt.Errorf("core: job is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if j.Status == status {
		j.UpdatedAt = now
		return nil
	}
	if !jobTransitionAllowed(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobStatusTransition, j.Status, status)
	}
	j.Status = status
	switch status {
	case JobStatusFailed:
		j.LastError = strings.TrimSpace(reason)
	case JobStatusCompleted:
		j.LastError = ""
		j.Progress = 100
	case JobStatusQueued:
		j.LastError = ""
	}
	j.UpdatedAt = now
	return nil
}

func jobTransitionAllowed(current, next JobStatus) bool {
	allowed := map[JobStatus]map[JobStatus]struct{}{
		JobStatusQueued: {
			JobStatusRunning: {},
			JobStatusFailed:  {},
		},
		JobStatusRunning: {
			JobStatusCompleted: {},
			JobStatusFailed:    {},
		},
		JobStatusFailed: {
			JobStatusQueued:  {},
			JobStatusRunning: {},
		},
		JobStatusCompleted: {},
	}
	targets, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

type AuditOutcome string

const (
	AuditOutcomeOK    AuditOutcome = "ok"
	AuditOutcomeError AuditOutcome = "error"
)

// AuditEntry records one service call. Every operation writes one entry,
// including calls that fail before reaching a connector.
type AuditEntry struct {
	ID            string
	TenantID      string
	Actor         string
	Action        string
	ConnectorID   string
	ConnectionID  string
	TargetType    string
	TargetID      string
	Outcome       AuditOutcome
	Error         string
	CorrelationID string
	Metadata      map[string]any
	CreatedAt     time.Time
}

type AuditFilter struct {
	TenantID     string
	ConnectorID  string
	ConnectionID string
	Action       string
	Outcome      AuditOutcome
	From         *time.Time
	To           *time.Time
	Page         int
	PerPage      int
}

type AuditPage struct {
	Entries    []AuditEntry
	Total      int
	Page       int
	PerPage    int
	NextCursor string
}
