package connectors

import "github.com/goliatone/go-connectors/core"

type Config = core.Config

type OAuthConfig = core.OAuthConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Registry = core.Registry
type Connector = core.Connector
type OAuthConnector = core.OAuthConnector
type SecretVault = core.SecretVault
type HandshakeStore = core.HandshakeStore
type ConnectionStore = core.ConnectionStore
type CredentialStore = core.CredentialStore
type SyncStateStore = core.SyncStateStore
type AuditSink = core.AuditSink
type JobStore = core.JobStore
type JobEnqueuer = core.JobEnqueuer
type RateLimitPolicy = core.RateLimitPolicy

type ConnectRequest = core.ConnectRequest
type ConnectResult = core.ConnectResult

type CompleteConnectRequest = core.CompleteConnectRequest

type RevokeRequest = core.RevokeRequest

type ExecuteJobRequest = core.ExecuteJobRequest

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithVault           = core.WithVault

	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver

	WithHandshakeStore  = core.WithHandshakeStore
	WithRegistry        = core.WithRegistry
	WithConnectionStore = core.WithConnectionStore
	WithCredentialStore = core.WithCredentialStore
	WithSyncStateStore  = core.WithSyncStateStore
	WithAuditSink       = core.WithAuditSink
	WithJobStore        = core.WithJobStore
	WithJobEnqueuer     = core.WithJobEnqueuer
	WithRateLimitPolicy = core.WithRateLimitPolicy
	WithCredentialCodec = core.WithCredentialCodec
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
