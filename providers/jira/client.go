package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/transport"
)

const (
	projectSearchPath = "/rest/api/3/project/search"
	issueSearchPath   = "/rest/api/3/search"
	serverInfoPath    = "/rest/api/3/serverInfo"
	webhookPath       = "/rest/api/3/webhook"
)

// client issues Jira Cloud REST v3 calls through the shared transport
// adapter. Every call derives its base URL and auth material from the
// per-call ConnectorConfig, so one client serves every tenant.
type client struct {
	transport core.TransportAdapter
	ratelimit core.RateLimitPolicy
	timeout   time.Duration
}

type jiraUser struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

type jiraNamed struct {
	Name string `json:"name"`
}

type jiraProject struct {
	ID             string   `json:"id"`
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	ProjectTypeKey string   `json:"projectTypeKey"`
	Lead           jiraUser `json:"lead"`
}

type projectSearchResult struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	IsLast     bool          `json:"isLast"`
	Values     []jiraProject `json:"values"`
}

type jiraProjectRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type jiraIssueFields struct {
	Summary  string         `json:"summary"`
	Created  string         `json:"created"`
	Updated  string         `json:"updated"`
	Status   jiraNamed      `json:"status"`
	Assignee jiraUser       `json:"assignee"`
	Reporter jiraUser       `json:"reporter"`
	Project  jiraProjectRef `json:"project"`
}

type jiraIssue struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Fields jiraIssueFields `json:"fields"`
}

type issueSearchResult struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []jiraIssue `json:"issues"`
}

type jiraComment struct {
	ID      string          `json:"id"`
	Author  jiraUser        `json:"author"`
	Body    json.RawMessage `json:"body"`
	Created string          `json:"created"`
	Updated string          `json:"updated"`
}

type commentListResult struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	Comments   []jiraComment `json:"comments"`
}

type serverInfoResult struct {
	BaseURL        string `json:"baseUrl"`
	Version        string `json:"version"`
	DeploymentType string `json:"deploymentType"`
	ServerTitle    string `json:"serverTitle"`
}

func (c *client) listProjects(ctx context.Context, cfg core.ConnectorConfig, startAt, limit int) (projectSearchResult, error) {
	out := projectSearchResult{}
	err := c.getJSON(ctx, cfg, projectSearchPath, pageQuery(startAt, limit), "containers", &out)
	return out, err
}

func (c *client) searchIssues(ctx context.Context, cfg core.ConnectorConfig, jql string, startAt, limit int) (issueSearchResult, error) {
	query := pageQuery(startAt, limit)
	if strings.TrimSpace(jql) != "" {
		query["jql"] = strings.TrimSpace(jql)
	}
	out := issueSearchResult{}
	err := c.getJSON(ctx, cfg, issueSearchPath, query, "items", &out)
	return out, err
}

func (c *client) listComments(ctx context.Context, cfg core.ConnectorConfig, issueID string, startAt, limit int) (commentListResult, error) {
	path := "/rest/api/3/issue/" + url.PathEscape(strings.TrimSpace(issueID)) + "/comment"
	out := commentListResult{}
	err := c.getJSON(ctx, cfg, path, pageQuery(startAt, limit), "comments", &out)
	return out, err
}

// serverInfo reports the HTTP status alongside the payload so Probe can
// tell "site answered but rejected us" apart from "nothing answered".
func (c *client) serverInfo(ctx context.Context, cfg core.ConnectorConfig) (serverInfoResult, int, error) {
	res, err := c.do(ctx, cfg, http.MethodGet, serverInfoPath, nil, nil, "probe")
	if err != nil {
		return serverInfoResult{}, 0, err
	}
	info := serverInfoResult{}
	if err := checkStatus(res, serverInfoPath); err != nil {
		return serverInfoResult{}, res.StatusCode, err
	}
	if len(res.Body) > 0 {
		if err := json.Unmarshal(res.Body, &info); err != nil {
			return serverInfoResult{}, res.StatusCode, decodeError(err, serverInfoPath)
		}
	}
	return info, res.StatusCode, nil
}

func (c *client) getJSON(ctx context.Context, cfg core.ConnectorConfig, path string, query map[string]string, bucket string, out any) error {
	res, err := c.do(ctx, cfg, http.MethodGet, path, query, nil, bucket)
	if err != nil {
		return err
	}
	if err := checkStatus(res, path); err != nil {
		return err
	}
	if out == nil || len(res.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return decodeError(err, path)
	}
	return nil
}

func (c *client) do(ctx context.Context, cfg core.ConnectorConfig, method, path string, query map[string]string, body []byte, bucket string) (core.TransportResponse, error) {
	if c == nil || c.transport == nil {
		return core.TransportResponse{}, goerrors.New(
			"jira: transport adapter is not configured",
			goerrors.CategoryInternal,
		).WithTextCode(core.ConnectorErrorInternal)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL()), "/")
	if base == "" {
		return core.TransportResponse{}, goerrors.New(
			"jira: base_url setting is required",
			goerrors.CategoryValidation,
		).WithTextCode(core.ConnectorErrorInvalidConfig)
	}
	authorization, err := authorizationHeader(cfg)
	if err != nil {
		return core.TransportResponse{}, err
	}

	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": authorization,
	}
	if len(body) > 0 {
		headers["Content-Type"] = "application/json"
	}

	res, doErr := c.transport.Do(ctx, core.TransportRequest{
		Method:  method,
		URL:     base + path,
		Headers: headers,
		Query:   query,
		Body:    body,
		Timeout: c.timeout,
	})
	c.reportAfterCall(ctx, cfg, bucket, res, doErr)
	if doErr != nil {
		return core.TransportResponse{}, doErr
	}
	return res, nil
}

// reportAfterCall feeds provider response headers back into the limiter so
// Retry-After and budget headers shape the next BeforeCall decision. The
// report is advisory; a limiter failure never fails the data call.
func (c *client) reportAfterCall(ctx context.Context, cfg core.ConnectorConfig, bucket string, res core.TransportResponse, callErr error) {
	if c == nil || c.ratelimit == nil || callErr != nil {
		return
	}
	_ = c.ratelimit.AfterCall(ctx, core.RateLimitKey{
		ConnectorID: ConnectorID,
		TenantID:    cfg.TenantID,
		BucketKey:   bucket,
	}, transport.ResponseMeta(res))
}

// authorizationHeader picks the scheme from the decrypted credential:
// api_key connections send Basic with the account email, everything else
// sends the bearer token.
func authorizationHeader(cfg core.ConnectorConfig) (string, error) {
	token := strings.TrimSpace(cfg.Credential.AccessToken)
	if token == "" {
		return "", goerrors.New(
			"jira: connection has no usable credential",
			goerrors.CategoryAuth,
		).WithTextCode(core.ConnectorErrorAuthFailed)
	}
	if strings.TrimSpace(cfg.Credential.TokenType) == string(core.AuthMethodAPIKey) {
		email := strings.TrimSpace(cfg.StringSetting(SettingAPIEmail))
		if email == "" {
			return "", goerrors.New(
				"jira: api_email setting is required for api_key auth",
				goerrors.CategoryValidation,
			).WithTextCode(core.ConnectorErrorInvalidConfig)
		}
		raw := base64.StdEncoding.EncodeToString([]byte(email + ":" + token))
		return "Basic " + raw, nil
	}
	return "Bearer " + token, nil
}

func checkStatus(res core.TransportResponse, path string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	message := providerMessage(res.Body)
	if message == "" {
		message = http.StatusText(res.StatusCode)
	}
	detail := fmt.Sprintf("jira: %s returned %d: %s", path, res.StatusCode, message)
	metadata := map[string]any{"path": path, "status_code": res.StatusCode}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return goerrors.New(detail, goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.ConnectorErrorAuthFailed).
			WithMetadata(metadata)
	case res.StatusCode == http.StatusNotFound:
		return goerrors.New(detail, goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode(core.ConnectorErrorNotFound).
			WithMetadata(metadata)
	case res.StatusCode == http.StatusTooManyRequests:
		if retryAfter := strings.TrimSpace(res.Headers["Retry-After"]); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				metadata["retry_after_ms"] = int64(seconds) * 1000
			}
		}
		return goerrors.New(detail, goerrors.CategoryRateLimit).
			WithCode(http.StatusTooManyRequests).
			WithTextCode(core.ConnectorErrorRateLimited).
			WithMetadata(metadata)
	case res.StatusCode >= 500:
		return goerrors.New(detail, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ConnectorErrorProviderUnavailable).
			WithMetadata(metadata)
	default:
		return goerrors.New(detail, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ConnectorErrorProviderUnavailable).
			WithMetadata(metadata)
	}
}

// providerMessage pulls the human-readable part out of Jira's error shape:
// {"errorMessages": [...], "errors": {"field": "reason"}}.
func providerMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	payload := struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	parts := append([]string(nil), payload.ErrorMessages...)
	for field, reason := range payload.Errors {
		parts = append(parts, field+": "+reason)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ")
}

func decodeError(err error, path string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "jira: decode response from "+path).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ConnectorErrorProviderUnavailable)
}

func pageQuery(startAt, limit int) map[string]string {
	return map[string]string{
		"startAt":    strconv.Itoa(startAt),
		"maxResults": strconv.Itoa(limit),
	}
}
