package sqlstore

import "github.com/goliatone/go-connectors/core"

var (
	_ core.ConnectionStore        = (*ConnectionStore)(nil)
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.SyncStateStore         = (*SyncStateStore)(nil)
	_ core.AuditSink              = (*AuditStore)(nil)
	_ core.HandshakeStore         = (*HandshakeStore)(nil)
	_ core.JobStore               = (*JobStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
