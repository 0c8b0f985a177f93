package connectors

import (
	"context"
	"fmt"
	"reflect"

	connectorscommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/core"
	connectorsquery "github.com/goliatone/go-connectors/query"
)

type CommandQueryService interface {
	connectorscommand.MutatingService
	connectorsquery.CatalogReader
	connectorsquery.DataReader
	connectorsquery.JobReader
}

type Commands struct {
	Connect           *connectorscommand.ConnectCommand
	CompleteConnect   *connectorscommand.CompleteConnectCommand
	Revoke            *connectorscommand.RevokeCommand
	ExecuteJob        *connectorscommand.ExecuteJobCommand
	SetSyncState      *connectorscommand.SetSyncStateCommand
	RegisterWebhook   *connectorscommand.RegisterWebhookCommand
	UnregisterWebhook *connectorscommand.UnregisterWebhookCommand
}

type Queries struct {
	ResolveConnector *connectorsquery.ResolveConnectorQuery
	ListConnectors   *connectorsquery.ListConnectorsQuery
	GetConnector     *connectorsquery.GetConnectorQuery
	ListConnections  *connectorsquery.ListConnectionsQuery
	GetJob           *connectorsquery.GetJobQuery
	GetSyncState     *connectorsquery.GetSyncStateQuery
	ListContainers   *connectorsquery.ListContainersQuery
	ListItems        *connectorsquery.ListItemsQuery
	ListComments     *connectorsquery.ListCommentsQuery
	ListAudit        *connectorsquery.ListAuditQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	auditReader connectorsquery.AuditReader
}

func WithFacadeAuditReader(reader connectorsquery.AuditReader) FacadeOption {
	return func(options *facadeOptions) {
		options.auditReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("connectors: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.auditReader
	if reader == nil {
		reader = resolveAuditReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Connect:           connectorscommand.NewConnectCommand(service),
		CompleteConnect:   connectorscommand.NewCompleteConnectCommand(service),
		Revoke:            connectorscommand.NewRevokeCommand(service),
		ExecuteJob:        connectorscommand.NewExecuteJobCommand(service),
		SetSyncState:      connectorscommand.NewSetSyncStateCommand(service),
		RegisterWebhook:   connectorscommand.NewRegisterWebhookCommand(service),
		UnregisterWebhook: connectorscommand.NewUnregisterWebhookCommand(service),
	}
	facade.queries = Queries{
		ResolveConnector: connectorsquery.NewResolveConnectorQuery(service),
		ListConnectors:   connectorsquery.NewListConnectorsQuery(service),
		GetConnector:     connectorsquery.NewGetConnectorQuery(service),
		ListConnections:  connectorsquery.NewListConnectionsQuery(service),
		GetJob:           connectorsquery.NewGetJobQuery(service),
		GetSyncState:     connectorsquery.NewGetSyncStateQuery(service),
		ListContainers:   connectorsquery.NewListContainersQuery(service),
		ListItems:        connectorsquery.NewListItemsQuery(service),
		ListComments:     connectorsquery.NewListCommentsQuery(service),
		ListAudit:        connectorsquery.NewListAuditQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// auditSinkReader bridges the store-level audit sink onto the query reader
// contract when the service itself does not serve audit listings.
type auditSinkReader struct {
	sink core.AuditSink
}

func (r auditSinkReader) ListAudit(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error) {
	if r.sink == nil {
		return core.AuditPage{}, fmt.Errorf("connectors: audit sink is required")
	}
	return r.sink.List(ctx, filter)
}

func resolveAuditReader(service CommandQueryService) connectorsquery.AuditReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(connectorsquery.AuditReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.AuditSink != nil {
		return auditSinkReader{sink: deps.AuditSink}
	}
	if deps.RepositoryFactory == nil {
		return nil
	}

	factoryValue := reflect.ValueOf(deps.RepositoryFactory)
	if !factoryValue.IsValid() {
		return nil
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return nil
	}
	method := factoryValue.MethodByName("AuditSink")
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok {
		return nil
	}
	if len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return nil
	}
	sink, ok := candidate.Interface().(core.AuditSink)
	if !ok {
		return nil
	}
	return auditSinkReader{sink: sink}
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
