package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/transport"
)

const (
	apiVersion   = "v59.0"
	versionsPath = "/services/data"
	sobjectsPath = versionsPath + "/" + apiVersion + "/sobjects"
	queryPath    = versionsPath + "/" + apiVersion + "/query"
)

type client struct {
	transport core.TransportAdapter
	ratelimit core.RateLimitPolicy
	timeout   time.Duration
}

type sobjectDescription struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Custom    bool   `json:"custom"`
	Queryable bool   `json:"queryable"`
}

type sobjectListResult struct {
	Sobjects []sobjectDescription `json:"sobjects"`
}

// queryResult carries Salesforce's native paging handle: when Done is
// false, NextRecordsURL points at the query locator for the next batch.
type queryResult struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

type apiVersionInfo struct {
	Label   string `json:"label"`
	URL     string `json:"url"`
	Version string `json:"version"`
}

func (c *client) listObjects(ctx context.Context, cfg core.ConnectorConfig) (sobjectListResult, error) {
	var result sobjectListResult
	err := c.getJSON(ctx, cfg, sobjectsPath, nil, "objects", &result)
	return result, err
}

func (c *client) query(ctx context.Context, cfg core.ConnectorConfig, soql string) (queryResult, error) {
	var result queryResult
	err := c.getJSON(ctx, cfg, queryPath, map[string]string{"q": soql}, "records", &result)
	return result, err
}

// queryMore follows a locator path returned in a prior result's
// nextRecordsUrl.
func (c *client) queryMore(ctx context.Context, cfg core.ConnectorConfig, locatorPath string) (queryResult, error) {
	var result queryResult
	err := c.getJSON(ctx, cfg, locatorPath, nil, "records", &result)
	return result, err
}

// apiVersions reads the unversioned discovery document. The raw status
// comes back alongside so the probe can tell "nothing answered" (zero)
// from "answered but rejected".
func (c *client) apiVersions(ctx context.Context, cfg core.ConnectorConfig) ([]apiVersionInfo, int, error) {
	res, err := c.do(ctx, cfg, http.MethodGet, versionsPath, nil, "probe")
	if err != nil {
		return nil, 0, err
	}
	if err := checkStatus(res, versionsPath); err != nil {
		return nil, res.StatusCode, err
	}
	var versions []apiVersionInfo
	if err := json.Unmarshal(res.Body, &versions); err != nil {
		return nil, res.StatusCode, decodeError(err, versionsPath)
	}
	return versions, res.StatusCode, nil
}

func (c *client) getJSON(ctx context.Context, cfg core.ConnectorConfig, path string, query map[string]string, bucket string, out any) error {
	res, err := c.do(ctx, cfg, http.MethodGet, path, query, bucket)
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

func (c *client) do(ctx context.Context, cfg core.ConnectorConfig, method, path string, query map[string]string, bucket string) (core.TransportResponse, error) {
	if c == nil || c.transport == nil {
		return core.TransportResponse{}, goerrors.New(
			"salesforce: transport adapter is not configured",
			goerrors.CategoryInternal,
		).WithTextCode(core.ConnectorErrorInternal)
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL()), "/")
	if base == "" {
		return core.TransportResponse{}, goerrors.New(
			"salesforce: base_url setting is required (the instance url)",
			goerrors.CategoryValidation,
		).WithTextCode(core.ConnectorErrorInvalidConfig)
	}
	token := strings.TrimSpace(cfg.Credential.AccessToken)
	if token == "" {
		return core.TransportResponse{}, goerrors.New(
			"salesforce: connection has no usable credential",
			goerrors.CategoryAuth,
		).WithTextCode(core.ConnectorErrorAuthFailed)
	}

	res, doErr := c.transport.Do(ctx, core.TransportRequest{
		Method: method,
		URL:    base + path,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": "Bearer " + token,
		},
		Query:   query,
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

func checkStatus(res core.TransportResponse, path string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	message := providerMessage(res.Body)
	if message == "" {
		message = http.StatusText(res.StatusCode)
	}
	detail := fmt.Sprintf("salesforce: %s returned %d: %s", path, res.StatusCode, message)
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
	default:
		return goerrors.New(detail, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ConnectorErrorProviderUnavailable).
			WithMetadata(metadata)
	}
}

// providerMessage handles the Salesforce error shape, a top-level array:
// [{"message": ..., "errorCode": ...}].
func providerMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	parts := make([]string, 0, len(payload))
	for _, item := range payload {
		if item.Message != "" {
			parts = append(parts, item.Message)
		} else if item.ErrorCode != "" {
			parts = append(parts, item.ErrorCode)
		}
	}
	return strings.Join(parts, "; ")
}

func decodeError(err error, path string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "salesforce: decode response from "+path).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ConnectorErrorProviderUnavailable)
}
