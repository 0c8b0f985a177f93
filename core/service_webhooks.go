package core

import (
	"context"
	"strings"
	"time"
)

// RegisterWebhook asks the provider to deliver events for a connection to
// the given target. Registration mutates provider state, so it never
// retries on its own; callers decide whether to re-issue.
func (s *Service) RegisterWebhook(ctx context.Context, req RegisterWebhookRequest) (handle WebhookHandle, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
	}
	defer func() {
		if handle.ID != "" {
			fields["webhook_id"] = handle.ID
		}
		s.observeOperation(ctx, startedAt, "register_webhook", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "webhook.register",
			ConnectionID: req.ConnectionID,
			TargetType:   "webhook",
			TargetID:     handle.ID,
		}, err)
	}()

	if strings.TrimSpace(req.Target.URL) == "" {
		err = s.badInput("webhook target url is required")
		return WebhookHandle{}, err
	}
	call, err := s.prepareListCall(ctx, req.TenantID, req.ConnectionID, CapabilityWebhooks, PageRequest{}, "webhooks")
	if err != nil {
		return WebhookHandle{}, err
	}
	fields["connector_id"] = call.connection.ConnectorID

	callCtx, cancel := providerContext(ctx, s.callTimeout())
	defer cancel()
	handle, err = call.connector.RegisterWebhook(callCtx, call.cfg, req.Target)
	if err != nil {
		err = s.mapError(err)
		return WebhookHandle{}, err
	}
	return handle, nil
}

// UnregisterWebhook removes a previously registered webhook. Either the
// handle id or the provider's own webhook id identifies it; passing
// neither is an input error.
func (s *Service) UnregisterWebhook(ctx context.Context, req UnregisterWebhookRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
		"webhook_id":    req.HandleID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "unregister_webhook", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "webhook.unregister",
			ConnectionID: req.ConnectionID,
			TargetType:   "webhook",
			TargetID:     firstNonEmpty(req.HandleID, req.ProviderWebhookID),
		}, err)
	}()

	handleID := strings.TrimSpace(req.HandleID)
	providerID := strings.TrimSpace(req.ProviderWebhookID)
	if handleID == "" && providerID == "" {
		err = s.badInput("a webhook handle id or provider webhook id is required")
		return err
	}
	call, err := s.prepareListCall(ctx, req.TenantID, req.ConnectionID, CapabilityWebhooks, PageRequest{}, "webhooks")
	if err != nil {
		return err
	}
	fields["connector_id"] = call.connection.ConnectorID

	callCtx, cancel := providerContext(ctx, s.callTimeout())
	defer cancel()
	if err = call.connector.UnregisterWebhook(callCtx, call.cfg, WebhookHandle{
		ID:                handleID,
		ProviderWebhookID: providerID,
	}); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}
