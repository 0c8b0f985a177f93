package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Capability string

const (
	CapabilityProbe      Capability = "probe"
	CapabilityJobs       Capability = "jobs"
	CapabilityContainers Capability = "containers"
	CapabilityItems      Capability = "items"
	CapabilityComments   Capability = "comments"
	CapabilityWebhooks   Capability = "webhooks"
)

type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodOAuth2 AuthMethod = "oauth2"
)

type ConnectorGroup string

const (
	ConnectorGroupDB   ConnectorGroup = "db"
	ConnectorGroupSaaS ConnectorGroup = "saas"
)

// ConfigField documents one settings key a connector accepts. Secret fields
// are masked wherever settings are echoed back.
type ConfigField struct {
	Name     string
	Label    string
	Required bool
	Secret   bool
	Example  string
}

type ConnectorDescriptor struct {
	ID           string
	Name         string
	Group        ConnectorGroup
	AuthMethods  []AuthMethod
	Capabilities []Capability
	ConfigFields []ConfigField
}

func (d ConnectorDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("core: connector descriptor id is required")
	}
	if d.Group != ConnectorGroupDB && d.Group != ConnectorGroupSaaS {
		return fmt.Errorf("core: connector descriptor group %q is invalid", d.Group)
	}
	if len(d.AuthMethods) == 0 {
		return fmt.Errorf("core: connector descriptor needs at least one auth method")
	}
	return nil
}

func (d ConnectorDescriptor) HasCapability(capability Capability) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func (d ConnectorDescriptor) SupportsAuthMethod(method AuthMethod) bool {
	for _, m := range d.AuthMethods {
		if m == method {
			return true
		}
	}
	return false
}

// ConnectorConfig is the runtime bundle handed to a connector for one call:
// the connection's opaque settings plus the decrypted credential. The
// credential only ever lives on the call stack.
type ConnectorConfig struct {
	TenantID     string
	ConnectionID string
	Settings     map[string]any
	Credential   ActiveCredential
}

func (c ConnectorConfig) StringSetting(key string) string {
	if len(c.Settings) == 0 {
		return ""
	}
	value, ok := c.Settings[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func (c ConnectorConfig) BaseURL() string {
	return c.StringSetting("base_url")
}

type ValidationResult struct {
	OK     bool
	Reason string
}

type ProbeResult struct {
	Reachable bool
	LatencyMS int64
	Details   map[string]any
}

type JobSpec struct {
	Kind       JobKind
	Parameters map[string]any
}

type JobResult struct {
	Payload map[string]any
}

type Container struct {
	ID    string
	Label string
	Kind  string
	Meta  map[string]any
}

type Item struct {
	ID          string
	Name        string
	ContainerID string
	Meta        map[string]any
}

// Comment timestamps stay in the provider's own string format; the service
// passes provider content through without reinterpreting it.
type Comment struct {
	ID      string
	Author  string
	Text    string
	Created string
	Updated string
}

type WebhookTarget struct {
	URL    string
	Events []string
	Secret string
}

type WebhookHandle struct {
	ID                string
	ProviderWebhookID string
	Metadata          map[string]any
}

// Connector is the contract every adapter implements. Operations outside an
// adapter's advertised capabilities are rejected by the service before the
// adapter is ever called; BaseConnector supplies rejecting defaults so thin
// adapters only implement what they support.
type Connector interface {
	Descriptor() ConnectorDescriptor
	Validate(ctx context.Context, cfg ConnectorConfig) (ValidationResult, error)
	Probe(ctx context.Context, cfg ConnectorConfig) (ProbeResult, error)
	Execute(ctx context.Context, cfg ConnectorConfig, spec JobSpec) (JobResult, error)
	ListContainers(ctx context.Context, cfg ConnectorConfig, page PageRequest) (Page[Container], error)
	ListItems(ctx context.Context, cfg ConnectorConfig, containerID string, page PageRequest) (Page[Item], error)
	ListComments(ctx context.Context, cfg ConnectorConfig, itemID string, page PageRequest) (Page[Comment], error)
	RegisterWebhook(ctx context.Context, cfg ConnectorConfig, target WebhookTarget) (WebhookHandle, error)
	UnregisterWebhook(ctx context.Context, cfg ConnectorConfig, handle WebhookHandle) error
}

// OAuthConnector is implemented by connectors that support the oauth2 auth
// method. The service type-asserts to it when negotiating a handshake.
type OAuthConnector interface {
	Connector
	BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)
	CompleteAuth(ctx context.Context, req CompleteAuthRequest) (CompleteAuthResponse, error)
}

// CredentialRevoker lets a connector revoke the upstream grant during
// Revoke. Failures are logged and swallowed; local revocation always wins.
type CredentialRevoker interface {
	RevokeCredential(ctx context.Context, cfg ConnectorConfig) error
}

type BeginAuthRequest struct {
	ConnectorID         string
	TenantID            string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Settings            map[string]any
	Metadata            map[string]any
}

type BeginAuthResponse struct {
	AuthorizationURL string
	State            string
	CodeChallenge    string
	CodeVerifier     string
	Scopes           []string
	Metadata         map[string]any
}

type CompleteAuthRequest struct {
	ConnectorID  string
	TenantID     string
	Code         string
	CodeVerifier string
	RedirectURI  string
	Settings     map[string]any
	Metadata     map[string]any
}

type ActiveCredential struct {
	ConnectionID    string
	TokenType       string
	AccessToken     string
	RefreshToken    string
	RequestedScopes []string
	GrantedScopes   []string
	ExpiresAt       *time.Time
	Refreshable     bool
	RotatesAt       *time.Time
	Metadata        map[string]any
}

type CompleteAuthResponse struct {
	ExternalAccountID string
	Credential        ActiveCredential
	GrantedScopes     []string
	Metadata          map[string]any
}

// Registry is the sealed connector catalog. Register fails after Seal; Get
// and List are safe for concurrent use once sealed.
type Registry interface {
	Register(connector Connector) error
	Get(id string) (Connector, bool)
	List() []Connector
	Seal()
}

type UpsertConnectionInput struct {
	TenantID          string
	ConnectorID       string
	Name              string
	AuthMethod        AuthMethod
	Status            ConnectionStatus
	Settings          map[string]any
	ExternalAccountID string
}

// ConnectionStore persists connections. Get and UpdateStatus are tenant
// scoped: a connection belonging to another tenant behaves exactly like a
// missing one.
type ConnectionStore interface {
	Upsert(ctx context.Context, input UpsertConnectionInput) (Connection, error)
	Get(ctx context.Context, tenantID, connectionID string) (Connection, error)
	FindByTenant(ctx context.Context, tenantID, connectorID string) ([]Connection, error)
	UpdateStatus(ctx context.Context, tenantID, connectionID string, status ConnectionStatus, reason string) (Connection, error)
}

type SaveCredentialInput struct {
	ConnectionID      string
	EncryptedPayload  []byte
	PayloadFormat     string
	PayloadVersion    int
	TokenType         string
	RequestedScopes   []string
	GrantedScopes     []string
	ExpiresAt         *time.Time
	Refreshable       bool
	RotatesAt         *time.Time
	Status            CredentialStatus
	EncryptionKeyID   string
	EncryptionVersion int
}

type CredentialStore interface {
	SaveNewVersion(ctx context.Context, input SaveCredentialInput) (Credential, error)
	GetActiveByConnection(ctx context.Context, connectionID string) (Credential, error)
	RevokeActive(ctx context.Context, connectionID string, reason string) error
}

type PutSyncStateInput struct {
	TenantID     string
	ConnectionID string
	Cursor       string
}

// SyncStateStore reads and writes incremental cursors. Get returns
// ErrSyncStateNotFound for a connection that has never stored a cursor,
// which callers must not collapse into an empty cursor value.
type SyncStateStore interface {
	Get(ctx context.Context, tenantID, connectionID string) (SyncState, error)
	Put(ctx context.Context, input PutSyncStateInput) (SyncState, error)
}

type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, filter AuditFilter) (AuditPage, error)
}

type CreateJobInput struct {
	TenantID     string
	ConnectorID  string
	ConnectionID string
	Kind         JobKind
	Parameters   map[string]any
}

type JobStore interface {
	Create(ctx context.Context, input CreateJobInput) (Job, error)
	Get(ctx context.Context, tenantID, jobID string) (Job, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, progress int, reason string) (Job, error)
	SetResult(ctx context.Context, jobID string, result map[string]any) (Job, error)
}

type StoreProvider interface {
	ConnectionStore() ConnectionStore
	CredentialStore() CredentialStore
	SyncStateStore() SyncStateStore
	AuditSink() AuditSink
	JobStore() JobStore
	HandshakeStore() HandshakeStore
}

// RepositoryStoreFactory builds the full store set from a persistence
// client, usually a *bun.DB or something wrapping one.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type VaultMode string

const (
	VaultModePersistent VaultMode = "persistent"
	VaultModeEphemeral  VaultMode = "ephemeral"
)

// SecretVault encrypts credential payloads at rest. Ephemeral vaults keep
// working so development setups run without key material, but anything they
// encrypt dies with the process.
type SecretVault interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Mode() VaultMode
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Idempotency          string
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type RateLimitKey struct {
	ConnectorID string
	TenantID    string
	BucketKey   string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, meta ProviderResponseMeta) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type ConnectRequest struct {
	TenantID    string
	ConnectorID string
	Name        string
	AuthMethod  AuthMethod
	RedirectURI string
	Scopes      []string
	Settings    map[string]any
	APIKey      string
	Metadata    map[string]any
}

// ConnectResult carries exactly one of Handshake (oauth2, the flow continues
// at CompleteConnect) or Completion (api_key, the connection is live).
type ConnectResult struct {
	Handshake  *BeginAuthResponse
	Completion *ConnectCompletion
}

type CompleteConnectRequest struct {
	TenantID     string
	ConnectorID  string
	State        string
	Code         string
	CodeVerifier string
	RedirectURI  string
	Name         string
	Settings     map[string]any
	Metadata     map[string]any
}

type ConnectCompletion struct {
	ConnectionID      string
	ConnectorID       string
	TenantID          string
	Status            ConnectionStatus
	ExternalAccountID string
	CredentialVersion int
}

type ProbeRequest struct {
	TenantID     string
	ConnectorID  string
	ConnectionID string
	Settings     map[string]any
}

type ValidateConfigRequest struct {
	TenantID    string
	ConnectorID string
	Settings    map[string]any
	APIKey      string
}

type ExecuteJobRequest struct {
	TenantID     string
	ConnectorID  string
	ConnectionID string
	Kind         JobKind
	Parameters   map[string]any
}

type RevokeRequest struct {
	TenantID     string
	ConnectionID string
	Reason       string
}

type SyncStateRequest struct {
	TenantID     string
	ConnectionID string
}

type SetSyncStateRequest struct {
	TenantID     string
	ConnectionID string
	Cursor       string
}

type ListContainersRequest struct {
	TenantID     string
	ConnectionID string
	Page         PageRequest
}

type ListItemsRequest struct {
	TenantID     string
	ConnectionID string
	ContainerID  string
	Page         PageRequest
}

type ListCommentsRequest struct {
	TenantID     string
	ConnectionID string
	ItemID       string
	Page         PageRequest
}

type RegisterWebhookRequest struct {
	TenantID     string
	ConnectionID string
	Target       WebhookTarget
}

type UnregisterWebhookRequest struct {
	TenantID          string
	ConnectionID      string
	HandleID          string
	ProviderWebhookID string
}

type FetchCredentialRequest struct {
	TenantID     string
	ConnectionID string
}

// ConnectorStatusNotConnected decorates catalog listings for connectors the
// tenant has no connection for. It is a presentation value, not a stored
// ConnectionStatus.
const ConnectorStatusNotConnected = "not_connected"

type ConnectorSummary struct {
	Descriptor   ConnectorDescriptor
	Status       string
	ConnectionID string
}

// ConnectorService is the full operation surface. The command and query
// layers and the root facade program against this interface.
type ConnectorService interface {
	Resolve(ctx context.Context, tenantID, connectorID string) (ConnectorDescriptor, error)
	ListConnectors(ctx context.Context, tenantID string) ([]ConnectorSummary, error)
	GetConnector(ctx context.Context, tenantID, connectorID string) (ConnectorSummary, error)
	ValidateConfig(ctx context.Context, req ValidateConfigRequest) (ValidationResult, error)
	Probe(ctx context.Context, req ProbeRequest) (ProbeResult, error)
	ExecuteJob(ctx context.Context, req ExecuteJobRequest) (Job, error)
	GetJob(ctx context.Context, tenantID, jobID string) (Job, error)
	Connect(ctx context.Context, req ConnectRequest) (ConnectResult, error)
	CompleteConnect(ctx context.Context, req CompleteConnectRequest) (ConnectCompletion, error)
	Revoke(ctx context.Context, req RevokeRequest) error
	ListConnections(ctx context.Context, tenantID, connectorID string) ([]Connection, error)
	GetSyncState(ctx context.Context, req SyncStateRequest) (SyncState, error)
	SetSyncState(ctx context.Context, req SetSyncStateRequest) (SyncState, error)
	ListContainers(ctx context.Context, req ListContainersRequest) (Page[Container], error)
	ListItems(ctx context.Context, req ListItemsRequest) (Page[Item], error)
	ListComments(ctx context.Context, req ListCommentsRequest) (Page[Comment], error)
	RegisterWebhook(ctx context.Context, req RegisterWebhookRequest) (WebhookHandle, error)
	UnregisterWebhook(ctx context.Context, req UnregisterWebhookRequest) error
	FetchCredentialPlaintext(ctx context.Context, req FetchCredentialRequest) (ActiveCredential, error)
	ListAudit(ctx context.Context, filter AuditFilter) (AuditPage, error)
}
