package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
	"github.com/goliatone/go-connectors/transport"
)

const (
	ConnectorID = "confluence"
	AuthURL     = "https://auth.atlassian.com/authorize"
	TokenURL    = "https://auth.atlassian.com/oauth/token"

	// Audience is the mandatory audience parameter on Atlassian 3LO
	// authorization requests.
	Audience = "api.atlassian.com"
)

const (
	SettingBaseURL  = "base_url"
	SettingAPIEmail = "api_email"
)

type Config struct {
	ClientID      string
	ClientSecret  string
	AuthURL       string
	TokenURL      string
	DefaultScopes []string
	Transport     core.TransportAdapter
	RateLimit     core.RateLimitPolicy
	CallTimeout   time.Duration
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		DefaultScopes: []string{
			"read:confluence-space.summary",
			"read:confluence-content.all",
			"offline_access",
		},
	}
}

// Descriptor omits the webhooks capability: Confluence Cloud has no
// dynamic registration endpoint, outbound webhooks are configured by a
// site admin. Register and unregister fall through to the capability
// sentinel.
func Descriptor() core.ConnectorDescriptor {
	return core.ConnectorDescriptor{
		ID:    ConnectorID,
		Name:  "Confluence",
		Group: core.ConnectorGroupSaaS,
		AuthMethods: []core.AuthMethod{
			core.AuthMethodOAuth2,
			core.AuthMethodAPIKey,
		},
		Capabilities: []core.Capability{
			core.CapabilityProbe,
			core.CapabilityJobs,
			core.CapabilityContainers,
			core.CapabilityItems,
			core.CapabilityComments,
		},
		ConfigFields: []core.ConfigField{
			{Name: SettingBaseURL, Label: "Site URL", Required: true, Example: "https://your-domain.atlassian.net"},
			{Name: SettingAPIEmail, Label: "Account Email", Example: "integration@example.com"},
		},
	}
}

// Connector adapts Confluence Cloud to the unified contract: spaces
// become containers, pages become items, and page comments become
// comments. Paging rides the provider's own cursor tokens.
type Connector struct {
	providers.BaseConnector
	exchange *providers.OAuth2
	client   *client
	now      func() time.Time
}

func New(cfg Config) (*Connector, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if len(cfg.DefaultScopes) == 0 {
		cfg.DefaultScopes = defaults.DefaultScopes
	}
	if cfg.Transport == nil {
		cfg.Transport = transport.NewRESTAdapter(nil)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	var exchange *providers.OAuth2
	if strings.TrimSpace(cfg.ClientID) != "" {
		built, err := providers.NewOAuth2(providers.OAuth2Config{
			ConnectorID:        ConnectorID,
			AuthURL:            cfg.AuthURL,
			TokenURL:           cfg.TokenURL,
			ClientID:           cfg.ClientID,
			ClientSecret:       cfg.ClientSecret,
			ClientSecretInBody: true,
			DefaultScopes:      cfg.DefaultScopes,
			ExtraAuthParams: map[string]string{
				"audience": Audience,
				"prompt":   "consent",
			},
			Now: cfg.Now,
		})
		if err != nil {
			return nil, err
		}
		exchange = built
	}

	return &Connector{
		BaseConnector: providers.NewBaseConnector(Descriptor()),
		exchange:      exchange,
		client: &client{
			transport: cfg.Transport,
			ratelimit: cfg.RateLimit,
			timeout:   cfg.CallTimeout,
		},
		now: cfg.Now,
	}, nil
}

func (c *Connector) Validate(_ context.Context, cfg core.ConnectorConfig) (core.ValidationResult, error) {
	base := strings.TrimSpace(cfg.BaseURL())
	if base == "" {
		return core.ValidationResult{Reason: "base_url setting is required"}, nil
	}
	parsed, err := url.Parse(base)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return core.ValidationResult{Reason: fmt.Sprintf("base_url %q is not a valid http(s) url", base)}, nil
	}
	if strings.TrimSpace(cfg.Credential.TokenType) == string(core.AuthMethodAPIKey) {
		if strings.TrimSpace(cfg.StringSetting(SettingAPIEmail)) == "" {
			return core.ValidationResult{Reason: "api_email setting is required for api_key auth"}, nil
		}
		if strings.TrimSpace(cfg.Credential.AccessToken) == "" {
			return core.ValidationResult{Reason: "api token is required for api_key auth"}, nil
		}
	}
	return core.ValidationResult{OK: true}, nil
}

func (c *Connector) Probe(ctx context.Context, cfg core.ConnectorConfig) (core.ProbeResult, error) {
	startedAt := c.clock()
	status, err := c.client.probeSite(ctx, cfg)
	latency := c.clock().Sub(startedAt).Milliseconds()

	if status == 0 {
		details := map[string]any{}
		if err != nil {
			details["error"] = err.Error()
		}
		return core.ProbeResult{LatencyMS: latency, Details: details}, nil
	}
	return core.ProbeResult{
		Reachable: true,
		LatencyMS: latency,
		Details: map[string]any{
			"status_code": status,
			"authorized":  err == nil,
		},
	}, nil
}

func (c *Connector) Execute(ctx context.Context, cfg core.ConnectorConfig, spec core.JobSpec) (core.JobResult, error) {
	switch spec.Kind {
	case core.JobKindProbe:
		probe, err := c.Probe(ctx, cfg)
		if err != nil {
			return core.JobResult{}, err
		}
		return core.JobResult{Payload: map[string]any{
			"kind":       string(core.JobKindProbe),
			"reachable":  probe.Reachable,
			"latency_ms": probe.LatencyMS,
		}}, nil
	case core.JobKindImport:
		return c.runListing(ctx, cfg, core.JobKindImport, spec.Parameters)
	case core.JobKindSync:
		return c.runListing(ctx, cfg, core.JobKindSync, spec.Parameters)
	default:
		return core.JobResult{}, fmt.Errorf("confluence: unsupported job kind %q", spec.Kind)
	}
}

// runListing walks one page per invocation. Confluence has no
// incremental search, so import and sync share the same cursor walk:
// without a container the run enumerates spaces, with one it pulls that
// space's pages.
func (c *Connector) runListing(ctx context.Context, cfg core.ConnectorConfig, kind core.JobKind, params map[string]any) (core.JobResult, error) {
	containerID := paramString(params, "container_id")
	page := core.PageRequest{
		Cursor: paramString(params, "cursor"),
		Limit:  paramInt(params, "limit"),
	}

	payload := map[string]any{"kind": string(kind)}
	if containerID == "" {
		containers, err := c.ListContainers(ctx, cfg, page)
		if err != nil {
			return core.JobResult{}, err
		}
		payload["containers_seen"] = len(containers.Items)
		if containers.NextCursor != nil {
			payload["next_cursor"] = *containers.NextCursor
		}
		return core.JobResult{Payload: payload}, nil
	}

	items, err := c.ListItems(ctx, cfg, containerID, page)
	if err != nil {
		return core.JobResult{}, err
	}
	payload["container_id"] = containerID
	payload["items_seen"] = len(items.Items)
	if items.NextCursor != nil {
		payload["next_cursor"] = *items.NextCursor
	}
	return core.JobResult{Payload: payload}, nil
}

func (c *Connector) ListContainers(ctx context.Context, cfg core.ConnectorConfig, page core.PageRequest) (core.Page[core.Container], error) {
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)

	result, err := c.client.listSpaces(ctx, cfg, normalized.Cursor, normalized.Limit)
	if err != nil {
		return core.Page[core.Container]{}, err
	}

	out := core.Page[core.Container]{Items: make([]core.Container, 0, len(result.Results))}
	for _, space := range result.Results {
		out.Items = append(out.Items, mapSpace(space))
	}
	out.NextCursor = nextCursorFromLinks(result.Links)
	return out, nil
}

func (c *Connector) ListItems(ctx context.Context, cfg core.ConnectorConfig, containerID string, page core.PageRequest) (core.Page[core.Item], error) {
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)

	result, err := c.client.listPages(ctx, cfg, containerID, normalized.Cursor, normalized.Limit)
	if err != nil {
		return core.Page[core.Item]{}, err
	}

	out := core.Page[core.Item]{Items: make([]core.Item, 0, len(result.Results))}
	for _, item := range result.Results {
		out.Items = append(out.Items, mapPage(item, containerID))
	}
	out.NextCursor = nextCursorFromLinks(result.Links)
	return out, nil
}

func (c *Connector) ListComments(ctx context.Context, cfg core.ConnectorConfig, itemID string, page core.PageRequest) (core.Page[core.Comment], error) {
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)

	result, err := c.client.listComments(ctx, cfg, itemID, normalized.Cursor, normalized.Limit)
	if err != nil {
		return core.Page[core.Comment]{}, err
	}

	out := core.Page[core.Comment]{Items: make([]core.Comment, 0, len(result.Results))}
	for _, comment := range result.Results {
		out.Items = append(out.Items, mapComment(comment))
	}
	out.NextCursor = nextCursorFromLinks(result.Links)
	return out, nil
}

// CreatePageRequest describes a page to create, with the body in
// Confluence storage representation.
type CreatePageRequest struct {
	SpaceKey string
	Title    string
	Body     string
}

type CreatedPage struct {
	ID      string
	Title   string
	SpaceID string
}

// CreatePage is a provider extension beyond the unified contract, for
// callers holding the concrete connector.
func (c *Connector) CreatePage(ctx context.Context, cfg core.ConnectorConfig, req CreatePageRequest) (CreatedPage, error) {
	if strings.TrimSpace(req.SpaceKey) == "" {
		return CreatedPage{}, goerrors.New(
			"confluence: space key is required to create a page",
			goerrors.CategoryBadInput,
		).WithTextCode(core.ConnectorErrorBadInput)
	}
	if strings.TrimSpace(req.Title) == "" {
		return CreatedPage{}, goerrors.New(
			"confluence: page title is required",
			goerrors.CategoryBadInput,
		).WithTextCode(core.ConnectorErrorBadInput)
	}

	created, err := c.client.createPage(ctx, cfg, req.SpaceKey, req.Title, req.Body)
	if err != nil {
		return CreatedPage{}, err
	}
	spaceID := created.SpaceID
	if spaceID == "" {
		spaceID = created.Space.ID
	}
	return CreatedPage{ID: created.ID, Title: created.Title, SpaceID: spaceID}, nil
}

func (c *Connector) BeginAuth(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if c == nil || c.exchange == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("confluence: oauth client credentials are not configured")
	}
	return c.exchange.BeginAuth(ctx, req)
}

func (c *Connector) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if c == nil || c.exchange == nil {
		return core.CompleteAuthResponse{}, fmt.Errorf("confluence: oauth client credentials are not configured")
	}
	return c.exchange.CompleteAuth(ctx, req)
}

func (c *Connector) clock() time.Time {
	if c != nil && c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func paramInt(params map[string]any, key string) int {
	if len(params) == 0 {
		return 0
	}
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}

var _ core.Connector = (*Connector)(nil)
var _ core.OAuthConnector = (*Connector)(nil)
