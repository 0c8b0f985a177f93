package salesforce

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
	"github.com/goliatone/go-connectors/transport"
)

const (
	ConnectorID = "salesforce"
	AuthURL     = "https://login.salesforce.com/services/oauth2/authorize"
	TokenURL    = "https://login.salesforce.com/services/oauth2/token"
	RevokeURL   = "https://login.salesforce.com/services/oauth2/revoke"
)

const (
	// SettingBaseURL holds the org's instance url, e.g.
	// https://acme.my.salesforce.com. The oauth callback metadata carries
	// it as instance_url; the connection stores it as a setting.
	SettingBaseURL = "base_url"
)

// objectNamePattern bounds container ids to sObject API names before they
// are spliced into SOQL.
var objectNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

type Config struct {
	ClientID      string
	ClientSecret  string
	AuthURL       string
	TokenURL      string
	RevokeURL     string
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
		RevokeURL:     RevokeURL,
		DefaultScopes: []string{"api", "refresh_token"},
	}
}

// Descriptor advertises neither comments nor webhooks: records have no
// unified comment stream, and outbound events ride platform events
// rather than REST-registered webhooks. Those operations fall through to
// the capability sentinel.
func Descriptor() core.ConnectorDescriptor {
	return core.ConnectorDescriptor{
		ID:    ConnectorID,
		Name:  "Salesforce",
		Group: core.ConnectorGroupSaaS,
		AuthMethods: []core.AuthMethod{
			core.AuthMethodOAuth2,
		},
		Capabilities: []core.Capability{
			core.CapabilityProbe,
			core.CapabilityJobs,
			core.CapabilityContainers,
			core.CapabilityItems,
		},
		ConfigFields: []core.ConfigField{
			{Name: SettingBaseURL, Label: "Instance URL", Required: true, Example: "https://acme.my.salesforce.com"},
		},
	}
}

// Connector adapts Salesforce to the unified contract: queryable
// sObjects become containers and their records become items. Record
// paging rides the provider's own query locator.
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
	if strings.TrimSpace(cfg.RevokeURL) == "" {
		cfg.RevokeURL = defaults.RevokeURL
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
			RevokeURL:          cfg.RevokeURL,
			ClientID:           cfg.ClientID,
			ClientSecret:       cfg.ClientSecret,
			ClientSecretInBody: true,
			DefaultScopes:      cfg.DefaultScopes,
			Now:                cfg.Now,
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
		return core.ValidationResult{Reason: "base_url setting is required (the instance url)"}, nil
	}
	parsed, err := url.Parse(base)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return core.ValidationResult{Reason: fmt.Sprintf("base_url %q is not a valid http(s) url", base)}, nil
	}
	return core.ValidationResult{OK: true}, nil
}

func (c *Connector) Probe(ctx context.Context, cfg core.ConnectorConfig) (core.ProbeResult, error) {
	startedAt := c.clock()
	versions, status, err := c.client.apiVersions(ctx, cfg)
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
	if len(versions) > 0 {
		latest := versions[len(versions)-1]
		details["api_version"] = latest.Version
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
		return c.runListing(ctx, cfg, core.JobKindImport, spec.Parameters, "CreatedDate")
	case core.JobKindSync:
		return c.runListing(ctx, cfg, core.JobKindSync, spec.Parameters, "SystemModstamp")
	default:
		return core.JobResult{}, fmt.Errorf("salesforce: unsupported job kind %q", spec.Kind)
	}
}

// runListing walks one page per invocation. Import orders records by
// CreatedDate, sync by SystemModstamp, so a caller persisting
// next_cursor drains changes incrementally either way.
func (c *Connector) runListing(ctx context.Context, cfg core.ConnectorConfig, kind core.JobKind, params map[string]any, order string) (core.JobResult, error) {
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

	items, err := c.listRecords(ctx, cfg, containerID, page, order)
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

// ListContainers windows the full sObject list client side: the describe
// endpoint returns every object at once, so offsets ride the shared
// opaque cursors.
func (c *Connector) ListContainers(ctx context.Context, cfg core.ConnectorConfig, page core.PageRequest) (core.Page[core.Container], error) {
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)
	start, err := core.DecodeCursor(normalized.Cursor)
	if err != nil {
		return core.Page[core.Container]{}, err
	}

	result, err := c.client.listObjects(ctx, cfg)
	if err != nil {
		return core.Page[core.Container]{}, err
	}

	queryable := make([]sobjectDescription, 0, len(result.Sobjects))
	for _, object := range result.Sobjects {
		if object.Queryable {
			queryable = append(queryable, object)
		}
	}

	out := core.Page[core.Container]{Items: []core.Container{}}
	if start >= len(queryable) {
		return out, nil
	}
	end := start + normalized.Limit
	if end > len(queryable) {
		end = len(queryable)
	}
	for _, object := range queryable[start:end] {
		out.Items = append(out.Items, mapObject(object))
	}
	if end < len(queryable) {
		next := core.EncodeCursor(end)
		out.NextCursor = &next
	}
	return out, nil
}

func (c *Connector) ListItems(ctx context.Context, cfg core.ConnectorConfig, containerID string, page core.PageRequest) (core.Page[core.Item], error) {
	return c.listRecords(ctx, cfg, containerID, page, "CreatedDate")
}

func (c *Connector) listRecords(ctx context.Context, cfg core.ConnectorConfig, containerID string, page core.PageRequest, order string) (core.Page[core.Item], error) {
	object := strings.TrimSpace(containerID)
	if !objectNamePattern.MatchString(object) {
		return core.Page[core.Item]{}, goerrors.New(
			fmt.Sprintf("salesforce: %q is not a valid sobject api name", containerID),
			goerrors.CategoryBadInput,
		).WithTextCode(core.ConnectorErrorBadInput)
	}
	normalized := core.NormalizePageRequest(page, core.PageLimitDefault)

	var result queryResult
	var err error
	if locator := strings.TrimSpace(normalized.Cursor); locator != "" {
		if !strings.HasPrefix(locator, versionsPath+"/") {
			return core.Page[core.Item]{}, goerrors.New(
				"salesforce: cursor is not a query locator",
				goerrors.CategoryBadInput,
			).WithTextCode(core.ConnectorErrorBadInput)
		}
		result, err = c.client.queryMore(ctx, cfg, locator)
	} else {
		soql := fmt.Sprintf("SELECT Id, Name FROM %s ORDER BY %s DESC LIMIT %d", object, order, normalized.Limit)
		result, err = c.client.query(ctx, cfg, soql)
	}
	if err != nil {
		return core.Page[core.Item]{}, err
	}

	out := core.Page[core.Item]{Items: make([]core.Item, 0, len(result.Records))}
	for _, record := range result.Records {
		out.Items = append(out.Items, mapRecord(record, object))
	}
	if !result.Done && strings.TrimSpace(result.NextRecordsURL) != "" {
		locator := result.NextRecordsURL
		out.NextCursor = &locator
	}
	return out, nil
}

func (c *Connector) BeginAuth(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if c == nil || c.exchange == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("salesforce: oauth client credentials are not configured")
	}
	return c.exchange.BeginAuth(ctx, req)
}

func (c *Connector) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if c == nil || c.exchange == nil {
		return core.CompleteAuthResponse{}, fmt.Errorf("salesforce: oauth client credentials are not configured")
	}
	return c.exchange.CompleteAuth(ctx, req)
}

// RevokeCredential revokes the upstream grant. Revoking the refresh
// token invalidates its access tokens too, so it is preferred when
// present.
func (c *Connector) RevokeCredential(ctx context.Context, cfg core.ConnectorConfig) error {
	if c == nil || c.exchange == nil {
		return fmt.Errorf("salesforce: oauth client credentials are not configured")
	}
	token := strings.TrimSpace(cfg.Credential.RefreshToken)
	if token == "" {
		token = strings.TrimSpace(cfg.Credential.AccessToken)
	}
	if token == "" {
		return nil
	}
	return c.exchange.RevokeToken(ctx, token)
}

func (c *Connector) clock() time.Time {
	if c != nil && c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

func mapObject(object sobjectDescription) core.Container {
	meta := map[string]any{}
	if object.Custom {
		meta["custom"] = true
	}
	return core.Container{
		ID:    object.Name,
		Label: object.Label,
		Kind:  "object",
		Meta:  meta,
	}
}

func mapRecord(record map[string]any, object string) core.Item {
	id := recordString(record, "Id")
	name := recordString(record, "Name")
	if name == "" {
		name = id
	}
	meta := map[string]any{}
	if attributes, ok := record["attributes"].(map[string]any); ok {
		if kind, ok := attributes["type"].(string); ok && kind != "" {
			meta["type"] = kind
		}
		if ref, ok := attributes["url"].(string); ok && ref != "" {
			meta["url"] = ref
		}
	}
	return core.Item{
		ID:          id,
		Name:        name,
		ContainerID: object,
		Meta:        meta,
	}
}

func recordString(record map[string]any, key string) string {
	value, ok := record[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
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
var _ core.CredentialRevoker = (*Connector)(nil)
