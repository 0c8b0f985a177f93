package confluence

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
	spacesPath = "/wiki/api/v2/spaces"
	pagesPath  = "/wiki/api/v2/pages"
)

// client wraps the transport adapter with Confluence Cloud v2 REST
// calls. The v2 API pages with opaque cursor tokens carried in the
// response _links, so cursors pass through untouched.
type client struct {
	transport core.TransportAdapter
	ratelimit core.RateLimitPolicy
	timeout   time.Duration
}

type resultLinks struct {
	Next string `json:"next"`
}

type confluenceSpace struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

type spaceListResult struct {
	Results []confluenceSpace `json:"results"`
	Links   resultLinks       `json:"_links"`
}

type pageVersion struct {
	Number int `json:"number"`
}

type confluencePage struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Status    string      `json:"status"`
	SpaceID   string      `json:"spaceId"`
	ParentID  string      `json:"parentId"`
	CreatedAt string      `json:"createdAt"`
	Version   pageVersion `json:"version"`
}

type pageListResult struct {
	Results []confluencePage `json:"results"`
	Links   resultLinks      `json:"_links"`
}

type confluenceUser struct {
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

type confluenceComment struct {
	ID        string          `json:"id"`
	CreatedBy confluenceUser  `json:"createdBy"`
	Body      json.RawMessage `json:"body"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

type commentListResult struct {
	Results []confluenceComment `json:"results"`
	Links   resultLinks         `json:"_links"`
}

type createdPageResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	SpaceID string `json:"spaceId"`
	Space   struct {
		ID string `json:"id"`
	} `json:"space"`
}

func (c *client) listSpaces(ctx context.Context, cfg core.ConnectorConfig, cursor string, limit int) (spaceListResult, error) {
	var result spaceListResult
	err := c.getJSON(ctx, cfg, spacesPath, pageQuery(cursor, limit), "spaces", &result)
	return result, err
}

func (c *client) listPages(ctx context.Context, cfg core.ConnectorConfig, spaceKey, cursor string, limit int) (pageListResult, error) {
	query := pageQuery(cursor, limit)
	if key := strings.TrimSpace(spaceKey); key != "" {
		query["spaceKey"] = key
	}
	var result pageListResult
	err := c.getJSON(ctx, cfg, pagesPath, query, "pages", &result)
	return result, err
}

func (c *client) listComments(ctx context.Context, cfg core.ConnectorConfig, pageID, cursor string, limit int) (commentListResult, error) {
	path := pagesPath + "/" + url.PathEscape(pageID) + "/comments"
	var result commentListResult
	err := c.getJSON(ctx, cfg, path, pageQuery(cursor, limit), "comments", &result)
	return result, err
}

func (c *client) createPage(ctx context.Context, cfg core.ConnectorConfig, spaceKey, title, body string) (createdPageResult, error) {
	payload, err := json.Marshal(map[string]any{
		"spaceKey": spaceKey,
		"title":    title,
		"body": map[string]string{
			"representation": "storage",
			"value":          body,
		},
	})
	if err != nil {
		return createdPageResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "confluence: encode create page payload")
	}

	res, err := c.do(ctx, cfg, http.MethodPost, pagesPath, nil, payload, "create")
	if err != nil {
		return createdPageResult{}, err
	}
	if err := checkStatus(res, pagesPath); err != nil {
		return createdPageResult{}, err
	}
	var created createdPageResult
	if err := json.Unmarshal(res.Body, &created); err != nil {
		return createdPageResult{}, decodeError(err, pagesPath)
	}
	return created, nil
}

// probeSite issues the cheapest authenticated read the v2 API offers and
// reports the raw status. A zero status means nothing answered at all.
func (c *client) probeSite(ctx context.Context, cfg core.ConnectorConfig) (int, error) {
	res, err := c.do(ctx, cfg, http.MethodGet, spacesPath, pageQuery("", 1), nil, "probe")
	if err != nil {
		return 0, err
	}
	return res.StatusCode, checkStatus(res, spacesPath)
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
			"confluence: transport adapter is not configured",
			goerrors.CategoryInternal,
		).WithTextCode(core.ConnectorErrorInternal)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL()), "/")
	if base == "" {
		return core.TransportResponse{}, goerrors.New(
			"confluence: base_url setting is required",
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

// authorizationHeader mirrors the Jira scheme selection: api_key
// connections pair the account email with the token for Basic auth,
// anything else is a bearer token.
func authorizationHeader(cfg core.ConnectorConfig) (string, error) {
	token := strings.TrimSpace(cfg.Credential.AccessToken)
	if token == "" {
		return "", goerrors.New(
			"confluence: connection has no usable credential",
			goerrors.CategoryAuth,
		).WithTextCode(core.ConnectorErrorAuthFailed)
	}
	if strings.TrimSpace(cfg.Credential.TokenType) == string(core.AuthMethodAPIKey) {
		email := strings.TrimSpace(cfg.StringSetting(SettingAPIEmail))
		if email == "" {
			return "", goerrors.New(
				"confluence: api_email setting is required for api_key auth",
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
	detail := fmt.Sprintf("confluence: %s returned %d: %s", path, res.StatusCode, message)
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

// providerMessage pulls the readable part out of the v2 error shape,
// {"errors": [{"code": ..., "title": ...}]}, with the legacy
// {"message": ...} form as fallback.
func providerMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	payload := struct {
		Errors []struct {
			Code  string `json:"code"`
			Title string `json:"title"`
		} `json:"errors"`
		Message string `json:"message"`
	}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	parts := make([]string, 0, len(payload.Errors))
	for _, item := range payload.Errors {
		if item.Title != "" {
			parts = append(parts, item.Title)
		} else if item.Code != "" {
			parts = append(parts, item.Code)
		}
	}
	if len(parts) == 0 && payload.Message != "" {
		parts = append(parts, payload.Message)
	}
	return strings.Join(parts, "; ")
}

func decodeError(err error, path string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "confluence: decode response from "+path).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ConnectorErrorProviderUnavailable)
}

// nextCursorFromLinks lifts the provider cursor token out of the
// relative next link, e.g. "/wiki/api/v2/spaces?cursor=eyJpZCI6NX0".
// The token is already opaque and round-trips as the page cursor.
func nextCursorFromLinks(links resultLinks) *string {
	raw := strings.TrimSpace(links.Next)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	token := parsed.Query().Get("cursor")
	if token == "" {
		return nil
	}
	return &token
}

func pageQuery(cursor string, limit int) map[string]string {
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if token := strings.TrimSpace(cursor); token != "" {
		query["cursor"] = token
	}
	return query
}
