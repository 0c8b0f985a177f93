package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-connectors/core"
)

// MutatingService is the write-side slice of the connector service the
// command handlers depend on.
type MutatingService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResult, error)
	CompleteConnect(ctx context.Context, req core.CompleteConnectRequest) (core.ConnectCompletion, error)
	Revoke(ctx context.Context, req core.RevokeRequest) error
	ExecuteJob(ctx context.Context, req core.ExecuteJobRequest) (core.Job, error)
	SetSyncState(ctx context.Context, req core.SetSyncStateRequest) (core.SyncState, error)
	RegisterWebhook(ctx context.Context, req core.RegisterWebhookRequest) (core.WebhookHandle, error)
	UnregisterWebhook(ctx context.Context, req core.UnregisterWebhookRequest) error
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.Connect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteConnectCommand struct {
	service MutatingService
}

func NewCompleteConnectCommand(service MutatingService) *CompleteConnectCommand {
	return &CompleteConnectCommand{service: service}
}

func (c *CompleteConnectCommand) Execute(ctx context.Context, msg CompleteConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: complete connect service is required")
	}
	out, err := c.service.CompleteConnect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokeCommand struct {
	service MutatingService
}

func NewRevokeCommand(service MutatingService) *RevokeCommand {
	return &RevokeCommand{service: service}
}

func (c *RevokeCommand) Execute(ctx context.Context, msg RevokeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke service is required")
	}
	return c.service.Revoke(ctx, msg.Request)
}

type ExecuteJobCommand struct {
	service MutatingService
}

func NewExecuteJobCommand(service MutatingService) *ExecuteJobCommand {
	return &ExecuteJobCommand{service: service}
}

func (c *ExecuteJobCommand) Execute(ctx context.Context, msg ExecuteJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	out, err := c.service.ExecuteJob(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetSyncStateCommand struct {
	service MutatingService
}

func NewSetSyncStateCommand(service MutatingService) *SetSyncStateCommand {
	return &SetSyncStateCommand{service: service}
}

func (c *SetSyncStateCommand) Execute(ctx context.Context, msg SetSyncStateMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync state service is required")
	}
	out, err := c.service.SetSyncState(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterWebhookCommand struct {
	service MutatingService
}

func NewRegisterWebhookCommand(service MutatingService) *RegisterWebhookCommand {
	return &RegisterWebhookCommand{service: service}
}

func (c *RegisterWebhookCommand) Execute(ctx context.Context, msg RegisterWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.RegisterWebhook(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UnregisterWebhookCommand struct {
	service MutatingService
}

func NewUnregisterWebhookCommand(service MutatingService) *UnregisterWebhookCommand {
	return &UnregisterWebhookCommand{service: service}
}

func (c *UnregisterWebhookCommand) Execute(ctx context.Context, msg UnregisterWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	return c.service.UnregisterWebhook(ctx, msg.Request)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
