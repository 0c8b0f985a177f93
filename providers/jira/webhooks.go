package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-connectors/core"
)

var defaultWebhookEvents = []string{
	"jira:issue_created",
	"jira:issue_updated",
	"comment_created",
}

type webhookRegistrationRequest struct {
	URL      string          `json:"url"`
	Webhooks []webhookDetail `json:"webhooks"`
}

type webhookDetail struct {
	Events    []string `json:"events"`
	JQLFilter string   `json:"jqlFilter"`
}

type webhookRegistrationResponse struct {
	WebhookRegistrationResult []struct {
		CreatedWebhookID int64    `json:"createdWebhookId"`
		Errors           []string `json:"errors"`
	} `json:"webhookRegistrationResult"`
}

// RegisterWebhook registers a dynamic webhook. Atlassian requires a JQL
// filter on every registration; connections narrow it through the
// webhook_jql setting, otherwise a match-all filter is sent.
func (c *Connector) RegisterWebhook(ctx context.Context, cfg core.ConnectorConfig, target core.WebhookTarget) (core.WebhookHandle, error) {
	callbackURL := strings.TrimSpace(target.URL)
	if callbackURL == "" {
		return core.WebhookHandle{}, goerrors.New(
			"jira: webhook target url is required",
			goerrors.CategoryBadInput,
		).WithTextCode(core.ConnectorErrorBadInput)
	}
	events := append([]string(nil), target.Events...)
	if len(events) == 0 {
		events = append([]string(nil), defaultWebhookEvents...)
	}
	jql := strings.TrimSpace(cfg.StringSetting(SettingWebhookJQL))
	if jql == "" {
		jql = "project is not EMPTY"
	}

	body, err := json.Marshal(webhookRegistrationRequest{
		URL:      callbackURL,
		Webhooks: []webhookDetail{{Events: events, JQLFilter: jql}},
	})
	if err != nil {
		return core.WebhookHandle{}, goerrors.Wrap(err, goerrors.CategoryInternal, "jira: encode webhook registration").
			WithTextCode(core.ConnectorErrorInternal)
	}

	res, err := c.client.do(ctx, cfg, http.MethodPost, webhookPath, nil, body, "webhooks")
	if err != nil {
		return core.WebhookHandle{}, err
	}
	if err := checkStatus(res, webhookPath); err != nil {
		return core.WebhookHandle{}, err
	}

	decoded := webhookRegistrationResponse{}
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return core.WebhookHandle{}, decodeError(err, webhookPath)
	}
	if len(decoded.WebhookRegistrationResult) == 0 {
		return core.WebhookHandle{}, goerrors.New(
			"jira: webhook registration returned no result",
			goerrors.CategoryExternal,
		).WithCode(http.StatusBadGateway).WithTextCode(core.ConnectorErrorProviderUnavailable)
	}
	first := decoded.WebhookRegistrationResult[0]
	if len(first.Errors) > 0 {
		return core.WebhookHandle{}, goerrors.New(
			"jira: webhook registration rejected: "+strings.Join(first.Errors, "; "),
			goerrors.CategoryExternal,
		).WithCode(http.StatusBadGateway).WithTextCode(core.ConnectorErrorProviderUnavailable)
	}

	return core.WebhookHandle{
		ID:                uuid.NewString(),
		ProviderWebhookID: strconv.FormatInt(first.CreatedWebhookID, 10),
		Metadata: map[string]any{
			"url":        callbackURL,
			"events":     events,
			"jql_filter": jql,
		},
	}, nil
}

func (c *Connector) UnregisterWebhook(ctx context.Context, cfg core.ConnectorConfig, handle core.WebhookHandle) error {
	providerID := strings.TrimSpace(handle.ProviderWebhookID)
	if providerID == "" {
		return goerrors.New(
			"jira: webhook handle has no provider webhook id",
			goerrors.CategoryBadInput,
		).WithTextCode(core.ConnectorErrorBadInput)
	}
	webhookID, err := strconv.ParseInt(providerID, 10, 64)
	if err != nil {
		return goerrors.New(
			"jira: provider webhook id "+strconv.Quote(providerID)+" is not numeric",
			goerrors.CategoryBadInput,
		).WithTextCode(core.ConnectorErrorBadInput)
	}

	body, err := json.Marshal(map[string]any{"webhookIds": []int64{webhookID}})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "jira: encode webhook removal").
			WithTextCode(core.ConnectorErrorInternal)
	}

	res, err := c.client.do(ctx, cfg, http.MethodDelete, webhookPath, nil, body, "webhooks")
	if err != nil {
		return err
	}
	return checkStatus(res, webhookPath)
}
