package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ConnectMessage]           = (*ConnectCommand)(nil)
	_ gocmd.Commander[CompleteConnectMessage]   = (*CompleteConnectCommand)(nil)
	_ gocmd.Commander[RevokeMessage]            = (*RevokeCommand)(nil)
	_ gocmd.Commander[ExecuteJobMessage]        = (*ExecuteJobCommand)(nil)
	_ gocmd.Commander[SetSyncStateMessage]      = (*SetSyncStateCommand)(nil)
	_ gocmd.Commander[RegisterWebhookMessage]   = (*RegisterWebhookCommand)(nil)
	_ gocmd.Commander[UnregisterWebhookMessage] = (*UnregisterWebhookCommand)(nil)
)
