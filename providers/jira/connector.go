package jira

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
	"github.com/goliatone/go-connectors/transport"
)

const (
	ConnectorID = "jira"
	AuthURL     = "https://auth.atlassian.com/authorize"
	TokenURL    = "https://auth.atlassian.com/oauth/token"

	// Audience is the mandatory audience parameter on Atlassian 3LO
	// authorization requests.
	Audience = "api.atlassian.com"
)

const (
	SettingBaseURL    = "base_url"
	SettingAPIEmail   = "api_email"
	SettingWebhookJQL = "webhook_jql"
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
		AuthURL:       AuthURL,
		TokenURL:      TokenURL,
		DefaultScopes: []string{"read:jira-work", "write:jira-work", "offline_access"},
	}
}

func Descriptor() core.ConnectorDescriptor {
	return core.ConnectorDescriptor{
		ID:    ConnectorID,
		Name:  "Jira",
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
			core.CapabilityWebhooks,
		},
		ConfigFields: []core.ConfigField{
			{Name: SettingBaseURL, Label: "Site URL", Required: true, Example: "https://your-domain.atlassian.net"},
			{Name: SettingAPIEmail, Label: "Account Email", Example: "integration@example.com"},
			{Name: SettingWebhookJQL, Label: "Webhook JQL Filter", Example: "project = ENG"},
		},
	}
}

// Connector adapts Jira Cloud to the unified contract: projects become
// containers, issues become items, and issue comments become comments.
// Both Atlassian 3LO OAuth and email+token Basic auth are supported.
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

// Validate checks the settings shape. Credential material is only checked
// for api_key connections, because oauth2 validation runs before any token
// exists.
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

// Probe answers reachability, not authorization: any HTTP response from the
// site counts as reachable, and the auth outcome lands in Details.
func (c *Connector) Probe(ctx context.Context, cfg core.ConnectorConfig) (core.ProbeResult, error) {
	startedAt := c.clock()
	info, status, err := c.client.serverInfo(ctx, cfg)
	latency := c.clock().Sub(startedAt).Milliseconds()

	if status == 0 {
		details := map[string]any{}
		if err != nil {
			details["error"] = err.Error()
		}
		return core.ProbeResult{LatencyMS: latency, Details: details}, nil
	}

	details := map[string]any{
		"status_code": status,
		"authorized":  err == nil,
	}
	if info.Version != "" {
		details["version"] = info.Version
	}
	if info.DeploymentType != "" {
		details["deployment_type"] = info.DeploymentType
	}
	if info.ServerTitle != "" {
		details["server_title"] = info.ServerTitle
	}
	return core.ProbeResult{Reachable: true, LatencyMS: latency, Details: details}, nil
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
		return c.runImport(ctx, cfg, spec.Parameters)
	case core.JobKindSync:
		return c.runSync(ctx, cfg, spec.Parameters)
	default:
		return core.JobResult{}, fmt.Errorf("jira: unsupported job kind %q", spec.Kind)
	}
}

// runImport walks one page per invocation and hands back a continuation
// cursor, so the job layer controls pacing. Without a container the run
// enumerates projects; with one it pulls that project's issues.
func (c *Connector) runImport(ctx context.Context, cfg core.ConnectorConfig, params map[string]any) (core.JobResult, error) {
	containerID := paramString(params, "container_id")
	page := core.PageRequest{
		Cursor: paramString(params, "cursor"),
		Limit:  paramInt(params, "limit"),
	}

	payload := map[string]any{"kind": string(core.JobKindImport)}
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

// runSync pulls the most recently updated issues first, so a caller that
// persists next_cursor between runs drains changes incrementally.
func (c *Connector) runSync(ctx context.Context, cfg core.ConnectorConfig, params map[string]any) (core.JobResult, error) {
	normalized := core.NormalizePageRequest(core.PageRequest{
		Cursor: paramString(params, "cursor"),
		Limit:  paramInt(params, "limit"),
	}, core.PageLimitDefault)
	start, err := core.DecodeCursor(normalized.Cursor)
	if err != nil {
		return core.JobResult{}, err
	}

	containerID := paramString(params, "container_id")
	result, err := c.client.searchIssues(ctx, cfg, projectJQL(containerID, "updated DESC"), start, normalized.Limit)
	if err != nil {
		return core.JobResult{}, err
	}

	payload := map[string]any{
		"kind":       string(core.JobKindSync),
		"items_seen": len(result.Issues),
	}
	if containerID != "" {
		payload["container_id"] = containerID
	}
	if next := nextOffsetCursor(result.StartAt, len(result.Issues), result.Total); next != nil {
		payload["next_cursor"] = *next
	}
	return core.JobResult{Payload: payload}, nil
}

func (c *Connector) ListContainers(ctx context.Context, cfg core.ConnectorConfig, page core.PageRequest) (core.Page[core.Container], error) {
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)
	start, err := core.DecodeCursor(normalized.Cursor)
	if err != nil {
		return core.Page[core.Container]{}, err
	}

	result, err := c.client.listProjects(ctx, cfg, start, normalized.Limit)
	if err != nil {
		return core.Page[core.Container]{}, err
	}

	out := core.Page[core.Container]{Items: make([]core.Container, 0, len(result.Values))}
	for _, project := range result.Values {
		out.Items = append(out.Items, mapProject(project))
	}
	last := result.IsLast || len(result.Values) < normalized.Limit
	if !last && len(result.Values) > 0 {
		next := core.EncodeCursor(result.StartAt + len(result.Values))
		out.NextCursor = &next
	}
	return out, nil
}

func (c *Connector) ListItems(ctx context.Context, cfg core.ConnectorConfig, containerID string, page core.PageRequest) (core.Page[core.Item], error) {
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)
	start, err := core.DecodeCursor(normalized.Cursor)
	if err != nil {
		return core.Page[core.Item]{}, err
	}

	result, err := c.client.searchIssues(ctx, cfg, projectJQL(containerID, "created DESC"), start, normalized.Limit)
	if err != nil {
		return core.Page[core.Item]{}, err
	}

	out := core.Page[core.Item]{Items: make([]core.Item, 0, len(result.Issues))}
	for _, issue := range result.Issues {
		out.Items = append(out.Items, mapIssue(issue))
	}
	out.NextCursor = nextOffsetCursor(result.StartAt, len(result.Issues), result.Total)
	return out, nil
}

func (c *Connector) ListComments(ctx context.Context, cfg core.ConnectorConfig, itemID string, page core.PageRequest) (core.Page[core.Comment], error) {
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)
	start, err := core.DecodeCursor(normalized.Cursor)
	if err != nil {
		return core.Page[core.Comment]{}, err
	}

	result, err := c.client.listComments(ctx, cfg, itemID, start, normalized.Limit)
	if err != nil {
		return core.Page[core.Comment]{}, err
	}

	out := core.Page[core.Comment]{Items: make([]core.Comment, 0, len(result.Comments))}
	for _, comment := range result.Comments {
		out.Items = append(out.Items, mapComment(comment))
	}
	out.NextCursor = nextOffsetCursor(result.StartAt, len(result.Comments), result.Total)
	return out, nil
}

func (c *Connector) BeginAuth(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if c == nil || c.exchange == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("jira: oauth client credentials are not configured")
	}
	return c.exchange.BeginAuth(ctx, req)
}

func (c *Connector) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if c == nil || c.exchange == nil {
		return core.CompleteAuthResponse{}, fmt.Errorf("jira: oauth client credentials are not configured")
	}
	return c.exchange.CompleteAuth(ctx, req)
}

func (c *Connector) clock() time.Time {
	if c != nil && c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

// projectJQL scopes a search to one project when a key is given; Jira
// requires an explicit ORDER BY for stable offset paging either way.
func projectJQL(projectKey, order string) string {
	key := strings.TrimSpace(projectKey)
	if key == "" {
		return "ORDER BY " + order
	}
	return fmt.Sprintf("project=%q ORDER BY %s", key, order)
}

func nextOffsetCursor(start, count, total int) *string {
	if count == 0 {
		return nil
	}
	next := start + count
	if next >= total {
		return nil
	}
	token := core.EncodeCursor(next)
	return &token
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
