package devkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/security"
)

// ScriptedConnector is a connector whose behavior is supplied per test. Any
// operation without a script falls back to a benign default, so a test only
// wires the calls it asserts on.
type ScriptedConnector struct {
	Desc           core.ConnectorDescriptor
	ValidateFn     func(ctx context.Context, cfg core.ConnectorConfig) (core.ValidationResult, error)
	ProbeFn        func(ctx context.Context, cfg core.ConnectorConfig) (core.ProbeResult, error)
	ExecuteFn      func(ctx context.Context, cfg core.ConnectorConfig, spec core.JobSpec) (core.JobResult, error)
	ContainersFn   func(ctx context.Context, cfg core.ConnectorConfig, page core.PageRequest) (core.Page[core.Container], error)
	ItemsFn        func(ctx context.Context, cfg core.ConnectorConfig, containerID string, page core.PageRequest) (core.Page[core.Item], error)
	CommentsFn     func(ctx context.Context, cfg core.ConnectorConfig, itemID string, page core.PageRequest) (core.Page[core.Comment], error)
	RegisterFn     func(ctx context.Context, cfg core.ConnectorConfig, target core.WebhookTarget) (core.WebhookHandle, error)
	UnregisterFn   func(ctx context.Context, cfg core.ConnectorConfig, handle core.WebhookHandle) error
	BeginAuthFn    func(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error)
	CompleteAuthFn func(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error)
}

func (c *ScriptedConnector) Descriptor() core.ConnectorDescriptor {
	if c == nil {
		return core.ConnectorDescriptor{}
	}
	return c.Desc
}

func (c *ScriptedConnector) Validate(ctx context.Context, cfg core.ConnectorConfig) (core.ValidationResult, error) {
	if c != nil && c.ValidateFn != nil {
		return c.ValidateFn(ctx, cfg)
	}
	return core.ValidationResult{OK: true}, nil
}

func (c *ScriptedConnector) Probe(ctx context.Context, cfg core.ConnectorConfig) (core.ProbeResult, error) {
	if c != nil && c.ProbeFn != nil {
		return c.ProbeFn(ctx, cfg)
	}
	return core.ProbeResult{Reachable: true}, nil
}

func (c *ScriptedConnector) Execute(ctx context.Context, cfg core.ConnectorConfig, spec core.JobSpec) (core.JobResult, error) {
	if c != nil && c.ExecuteFn != nil {
		return c.ExecuteFn(ctx, cfg, spec)
	}
	return core.JobResult{Payload: map[string]any{}}, nil
}

func (c *ScriptedConnector) ListContainers(ctx context.Context, cfg core.ConnectorConfig, page core.PageRequest) (core.Page[core.Container], error) {
	if c != nil && c.ContainersFn != nil {
		return c.ContainersFn(ctx, cfg, page)
	}
	return core.Page[core.Container]{Items: []core.Container{}}, nil
}

func (c *ScriptedConnector) ListItems(ctx context.Context, cfg core.ConnectorConfig, containerID string, page core.PageRequest) (core.Page[core.Item], error) {
	if c != nil && c.ItemsFn != nil {
		return c.ItemsFn(ctx, cfg, containerID, page)
	}
	return core.Page[core.Item]{Items: []core.Item{}}, nil
}

func (c *ScriptedConnector) ListComments(ctx context.Context, cfg core.ConnectorConfig, itemID string, page core.PageRequest) (core.Page[core.Comment], error) {
	if c != nil && c.CommentsFn != nil {
		return c.CommentsFn(ctx, cfg, itemID, page)
	}
	return core.Page[core.Comment]{Items: []core.Comment{}}, nil
}

func (c *ScriptedConnector) RegisterWebhook(ctx context.Context, cfg core.ConnectorConfig, target core.WebhookTarget) (core.WebhookHandle, error) {
	if c != nil && c.RegisterFn != nil {
		return c.RegisterFn(ctx, cfg, target)
	}
	return core.WebhookHandle{ID: "devkit_webhook"}, nil
}

func (c *ScriptedConnector) UnregisterWebhook(ctx context.Context, cfg core.ConnectorConfig, handle core.WebhookHandle) error {
	if c != nil && c.UnregisterFn != nil {
		return c.UnregisterFn(ctx, cfg, handle)
	}
	return nil
}

func (c *ScriptedConnector) BeginAuth(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if c != nil && c.BeginAuthFn != nil {
		return c.BeginAuthFn(ctx, req)
	}
	return core.BeginAuthResponse{}, fmt.Errorf("devkit: begin auth is not scripted")
}

func (c *ScriptedConnector) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if c != nil && c.CompleteAuthFn != nil {
		return c.CompleteAuthFn(ctx, req)
	}
	return core.CompleteAuthResponse{}, fmt.Errorf("devkit: complete auth is not scripted")
}

// RecordedAfterCall pairs the rate-limit key with the provider response meta
// a connector reported after a call.
type RecordedAfterCall struct {
	Key  core.RateLimitKey
	Meta core.ProviderResponseMeta
}

// RecordingRateLimitPolicy captures every BeforeCall and AfterCall so tests
// can assert connectors feed the limiter. BeforeErr, when set, is returned
// from every BeforeCall to simulate an exhausted budget.
type RecordingRateLimitPolicy struct {
	mu        sync.Mutex
	BeforeErr error
	before    []core.RateLimitKey
	after     []RecordedAfterCall
}

func (p *RecordingRateLimitPolicy) BeforeCall(_ context.Context, key core.RateLimitKey) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.before = append(p.before, key)
	return p.BeforeErr
}

func (p *RecordingRateLimitPolicy) AfterCall(_ context.Context, key core.RateLimitKey, meta core.ProviderResponseMeta) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.after = append(p.after, RecordedAfterCall{Key: key, Meta: meta})
	return nil
}

func (p *RecordingRateLimitPolicy) BeforeCalls() []core.RateLimitKey {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.RateLimitKey(nil), p.before...)
}

func (p *RecordingRateLimitPolicy) AfterCalls() []RecordedAfterCall {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RecordedAfterCall(nil), p.after...)
}

// NewVaultFixture returns a working persistent-mode vault sealed with a
// fixed key, for tests that need real encrypt/decrypt round trips.
func NewVaultFixture() (core.SecretVault, error) {
	return security.NewAppKeyVault(
		[]byte("devkit-fixture-key-material"),
		security.WithKeyID("devkit"),
	)
}

var _ core.Connector = (*ScriptedConnector)(nil)
var _ core.OAuthConnector = (*ScriptedConnector)(nil)
var _ core.RateLimitPolicy = (*RecordingRateLimitPolicy)(nil)
