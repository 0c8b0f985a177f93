package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrConnectorNotFound      = errors.New("core: connector not found")
	ErrCapabilityNotSupported = errors.New("core: capability not supported")
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	vault             SecretVault
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	handshakeStore    HandshakeStore
	registry          Registry
	connectionStore   ConnectionStore
	credentialStore   CredentialStore
	syncStateStore    SyncStateStore
	auditSink         AuditSink
	jobStore          JobStore
	jobEnqueuer       JobEnqueuer
	rateLimitPolicy   RateLimitPolicy
	credentialCodec   CredentialCodec
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	Vault             SecretVault
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	HandshakeStore    HandshakeStore
	Registry          Registry
	ConnectionStore   ConnectionStore
	CredentialStore   CredentialStore
	SyncStateStore    SyncStateStore
	AuditSink         AuditSink
	JobStore          JobStore
	JobEnqueuer       JobEnqueuer
	RateLimitPolicy   RateLimitPolicy
	CredentialCodec   CredentialCodec
}

// NewService builds the connector manager. Configuration resolves in three
// layers (defaults, config provider, runtime overrides); every nil
// dependency gets a working default; stores missing from the builder are
// pulled from the repository factory when one is wired. The registry is
// sealed before the service is returned, so connector registration must
// happen first.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("connectors", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("connectors"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewConnectorRegistry()
	}
	if builder.credentialCodec == nil {
		builder.credentialCodec = JSONCredentialCodec{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		var stores StoreProvider
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = direct
		}
		if stores != nil {
			if builder.connectionStore == nil {
				builder.connectionStore = stores.ConnectionStore()
			}
			if builder.credentialStore == nil {
				builder.credentialStore = stores.CredentialStore()
			}
			if builder.syncStateStore == nil {
				builder.syncStateStore = stores.SyncStateStore()
			}
			if builder.auditSink == nil {
				builder.auditSink = stores.AuditSink()
			}
			if builder.jobStore == nil {
				builder.jobStore = stores.JobStore()
			}
			if builder.handshakeStore == nil {
				builder.handshakeStore = stores.HandshakeStore()
			}
		}
	}
	if builder.handshakeStore == nil {
		builder.handshakeStore = NewMemoryHandshakeStore(finalConfig.OAuth.HandshakeTTL)
	}

	if builder.vault == nil {
		logger.Warn("secret vault is not configured; credential operations will fail until one is wired")
	} else if builder.vault.Mode() == VaultModeEphemeral {
		logger.Warn("secret vault is running with an ephemeral key; encrypted credentials will not survive a restart")
	}

	builder.registry.Seal()

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		vault:             builder.vault,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		handshakeStore:    builder.handshakeStore,
		registry:          builder.registry,
		connectionStore:   builder.connectionStore,
		credentialStore:   builder.credentialStore,
		syncStateStore:    builder.syncStateStore,
		auditSink:         builder.auditSink,
		jobStore:          builder.jobStore,
		jobEnqueuer:       builder.jobEnqueuer,
		rateLimitPolicy:   builder.rateLimitPolicy,
		credentialCodec:   builder.credentialCodec,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		Vault:             s.vault,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		HandshakeStore:    s.handshakeStore,
		Registry:          s.registry,
		ConnectionStore:   s.connectionStore,
		CredentialStore:   s.credentialStore,
		SyncStateStore:    s.syncStateStore,
		AuditSink:         s.auditSink,
		JobStore:          s.jobStore,
		JobEnqueuer:       s.jobEnqueuer,
		RateLimitPolicy:   s.rateLimitPolicy,
		CredentialCodec:   s.credentialCodec,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) resolveConnector(connectorID string) (Connector, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	connectorID = strings.TrimSpace(connectorID)
	connector, ok := s.registry.Get(connectorID)
	if ok {
		return connector, nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("connector %q is not registered", connectorID),
		goerrors.CategoryNotFound,
	).WithTextCode(ConnectorErrorNotFound)
	return nil, ensureConnectorErrorEnvelope(wrapped.WithMetadata(map[string]any{"connector_id": connectorID}))
}

// resolveOAuthConnector narrows a registered connector to the oauth2
// surface. A descriptor that advertises oauth2 without implementing
// OAuthConnector is a wiring bug surfaced as capability unsupported.
func (s *Service) resolveOAuthConnector(connectorID string) (OAuthConnector, error) {
	connector, err := s.resolveConnector(connectorID)
	if err != nil {
		return nil, err
	}
	oauthConnector, ok := connector.(OAuthConnector)
	if !ok {
		wrapped := s.errorFactory(
			fmt.Sprintf("connector %q does not implement the oauth2 flow", connector.Descriptor().ID),
			goerrors.CategoryOperation,
		).WithTextCode(ConnectorErrorCapabilityUnsupported)
		return nil, ensureConnectorErrorEnvelope(wrapped.WithMetadata(map[string]any{"connector_id": connector.Descriptor().ID}))
	}
	return oauthConnector, nil
}

func (s *Service) requireCapability(connector Connector, capability Capability) error {
	descriptor := connector.Descriptor()
	if descriptor.HasCapability(capability) {
		return nil
	}
	wrapped := s.errorFactory(
		fmt.Sprintf("capability %q is not supported by connector %q", capability, descriptor.ID),
		goerrors.CategoryOperation,
	).WithTextCode(ConnectorErrorCapabilityUnsupported)
	return ensureConnectorErrorEnvelope(wrapped.WithMetadata(map[string]any{
		"connector_id": descriptor.ID,
		"capability":   string(capability),
	}))
}

func (s *Service) requireVault() error {
	if s == nil || s.vault == nil {
		return s.mapError(fmt.Errorf("core: secret vault is not configured"))
	}
	return nil
}

func (s *Service) badInput(message string) error {
	wrapped := s.errorFactory(message, goerrors.CategoryBadInput).
		WithTextCode(ConnectorErrorBadInput)
	return ensureConnectorErrorEnvelope(wrapped)
}

func (s *Service) invalidState(message string) error {
	wrapped := s.errorFactory(message, goerrors.CategoryConflict).
		WithTextCode(ConnectorErrorInvalidState)
	return ensureConnectorErrorEnvelope(wrapped)
}

// getConnection is the tenant-scoped read every connection-bound operation
// funnels through. A connection owned by another tenant behaves exactly
// like a missing one.
func (s *Service) getConnection(ctx context.Context, tenantID, connectionID string) (Connection, error) {
	if s == nil || s.connectionStore == nil {
		return Connection{}, s.mapError(fmt.Errorf("core: connection store is not configured"))
	}
	tenantID = strings.TrimSpace(tenantID)
	connectionID = strings.TrimSpace(connectionID)
	if tenantID == "" {
		return Connection{}, s.badInput("tenant id is required")
	}
	if connectionID == "" {
		return Connection{}, s.badInput("connection id is required")
	}
	connection, err := s.connectionStore.Get(ctx, tenantID, connectionID)
	if err != nil {
		return Connection{}, s.mapError(err)
	}
	return connection, nil
}

// requireUsableConnection rejects operations against connections that are
// not in a state the operation can work with. Probe tolerates degraded
// connections because it exists to diagnose them; data reads do not.
func (s *Service) requireUsableConnection(connection Connection, allowDegraded bool) error {
	switch connection.Status {
	case ConnectionStatusRevoked:
		wrapped := s.errorFactory(
			fmt.Sprintf("connection %q is revoked", connection.ID),
			goerrors.CategoryConflict,
		).WithTextCode(ConnectorErrorInvalidState)
		return ensureConnectorErrorEnvelope(wrapped.WithMetadata(map[string]any{"connection_id": connection.ID}))
	case ConnectionStatusConnected:
		return nil
	default:
		if allowDegraded {
			return nil
		}
		wrapped := s.errorFactory(
			fmt.Sprintf("connection %q is %s, not connected", connection.ID, connection.Status),
			goerrors.CategoryConflict,
		).WithTextCode(ConnectorErrorInvalidState)
		return ensureConnectorErrorEnvelope(wrapped.WithMetadata(map[string]any{
			"connection_id": connection.ID,
			"status":        string(connection.Status),
		}))
	}
}

// activeCredential decrypts the connection's active credential just in
// time. The plaintext lives only in the returned value on the caller's
// stack; nothing here logs or stores it.
func (s *Service) activeCredential(ctx context.Context, connection Connection) (ActiveCredential, error) {
	if s == nil || s.credentialStore == nil {
		return ActiveCredential{}, nil
	}
	if err := s.requireVault(); err != nil {
		return ActiveCredential{}, err
	}
	stored, err := s.credentialStore.GetActiveByConnection(ctx, connection.ID)
	if err != nil {
		return ActiveCredential{}, s.mapError(err)
	}
	plaintext, err := s.vault.Decrypt(ctx, stored.EncryptedPayload)
	if err != nil {
		return ActiveCredential{}, s.mapError(err)
	}
	credential, err := decodeCredentialPayload(stored.PayloadFormat, plaintext)
	if err != nil {
		return ActiveCredential{}, s.mapError(err)
	}
	credential.ConnectionID = connection.ID
	if credential.TokenType == "" {
		credential.TokenType = stored.TokenType
	}
	if len(credential.RequestedScopes) == 0 {
		credential.RequestedScopes = append([]string(nil), stored.RequestedScopes...)
	}
	if len(credential.GrantedScopes) == 0 {
		credential.GrantedScopes = append([]string(nil), stored.GrantedScopes...)
	}
	if credential.ExpiresAt == nil {
		credential.ExpiresAt = cloneTimePointer(stored.ExpiresAt)
	}
	credential.Refreshable = credential.Refreshable || stored.Refreshable
	return credential, nil
}

func decodeCredentialPayload(format string, payload []byte) (ActiveCredential, error) {
	switch strings.TrimSpace(format) {
	case CredentialPayloadFormatAPIKey:
		return APIKeyCredentialCodec{}.Decode(payload)
	case CredentialPayloadFormatJSONV1, "":
		return JSONCredentialCodec{}.Decode(payload)
	default:
		return ActiveCredential{}, fmt.Errorf("core: unknown credential payload format %q", format)
	}
}

// encryptAndSaveCredential runs the only path from plaintext credential to
// storage: codec encode, vault encrypt, versioned save. The previous active
// version is revoked by the store in the same transaction.
func (s *Service) encryptAndSaveCredential(ctx context.Context, connectionID string, credential ActiveCredential, codec CredentialCodec) (Credential, error) {
	if s == nil || s.credentialStore == nil {
		return Credential{}, s.mapError(fmt.Errorf("core: credential store is not configured"))
	}
	if err := s.requireVault(); err != nil {
		return Credential{}, err
	}
	if codec == nil {
		codec = s.credentialCodec
	}
	plaintext, err := codec.Encode(credential)
	if err != nil {
		return Credential{}, s.mapError(err)
	}
	encrypted, err := s.vault.Encrypt(ctx, plaintext)
	if err != nil {
		return Credential{}, s.mapError(err)
	}
	keyID, keyVersion := s.vaultKeyMetadata()
	saved, err := s.credentialStore.SaveNewVersion(ctx, SaveCredentialInput{
		ConnectionID:      connectionID,
		EncryptedPayload:  encrypted,
		PayloadFormat:     codec.Format(),
		PayloadVersion:    codec.Version(),
		TokenType:         credential.TokenType,
		RequestedScopes:   append([]string(nil), credential.RequestedScopes...),
		GrantedScopes:     append([]string(nil), credential.GrantedScopes...),
		ExpiresAt:         cloneTimePointer(credential.ExpiresAt),
		Refreshable:       credential.Refreshable,
		RotatesAt:         cloneTimePointer(credential.RotatesAt),
		Status:            CredentialStatusActive,
		EncryptionKeyID:   keyID,
		EncryptionVersion: keyVersion,
	})
	if err != nil {
		return Credential{}, s.mapError(err)
	}
	return saved, nil
}

// vaultKeyMetadata mirrors the envelope's key id and version into the
// credential row for operational queries. Vaults that do not expose them
// leave the columns empty; the envelope stays authoritative.
func (s *Service) vaultKeyMetadata() (string, int) {
	if s == nil || s.vault == nil {
		return "", 0
	}
	if meta, ok := s.vault.(interface{ Metadata() (string, int) }); ok {
		return meta.Metadata()
	}
	keyID := ""
	version := 0
	if withID, ok := s.vault.(interface{ KeyID() string }); ok {
		keyID = withID.KeyID()
	}
	if withVersion, ok := s.vault.(interface{ Version() int }); ok {
		version = withVersion.Version()
	}
	return keyID, version
}

// providerContext bounds one outbound adapter call. A zero timeout keeps
// the caller's deadline.
func providerContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) probeTimeout() time.Duration {
	if s == nil {
		return 0
	}
	return s.config.Providers.ProbeTimeout
}

func (s *Service) callTimeout() time.Duration {
	if s == nil {
		return 0
	}
	return s.config.Providers.CallTimeout
}

// shouldRetryProviderCall decides whether an idempotent read gets its
// single retry. Only provider timeouts and unavailability qualify, never
// auth or input failures, and never once the caller's context is done.
func (s *Service) shouldRetryProviderCall(ctx context.Context, err error) bool {
	if s == nil || err == nil {
		return false
	}
	if s.config.Providers.RetryAttempts < 1 {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	mapped := connectorErrorMapper(err)
	if mapped == nil {
		return false
	}
	switch mapped.TextCode {
	case ConnectorErrorProviderTimeout, ConnectorErrorProviderUnavailable:
		return true
	default:
		return false
	}
}

// beforeProviderCall consults the rate limit policy for the connector and
// tenant bucket before an outbound call is made.
func (s *Service) beforeProviderCall(ctx context.Context, connectorID, tenantID, bucket string) error {
	if s == nil || s.rateLimitPolicy == nil {
		return nil
	}
	err := s.rateLimitPolicy.BeforeCall(ctx, RateLimitKey{
		ConnectorID: connectorID,
		TenantID:    tenantID,
		BucketKey:   bucket,
	})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

var _ ConnectorService = (*Service)(nil)
