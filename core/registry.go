package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrRegistrySealed = errors.New("core: connector registry is sealed")

// ConnectorRegistry is the static connector catalog. Connectors register
// during startup and Seal freezes the set before the service takes traffic;
// reads after that never contend on writes.
type ConnectorRegistry struct {
	mu         sync.RWMutex
	sealed     bool
	connectors map[string]Connector
}

func NewConnectorRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{connectors: make(map[string]Connector)}
}

func (r *ConnectorRegistry) Register(connector Connector) error {
	if r == nil {
		return fmt.Errorf("core: connector registry is not configured")
	}
	if connector == nil {
		return fmt.Errorf("core: connector is nil")
	}
	descriptor := connector.Descriptor()
	if err := descriptor.Validate(); err != nil {
		return err
	}
	id := strings.TrimSpace(descriptor.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrRegistrySealed, id)
	}
	if _, exists := r.connectors[id]; exists {
		return fmt.Errorf("core: connector already registered: %s", id)
	}
	r.connectors[id] = connector
	return nil
}

func (r *ConnectorRegistry) Get(connectorID string) (Connector, bool) {
	if r == nil {
		return nil, false
	}
	id := strings.TrimSpace(connectorID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	connector, ok := r.connectors[id]
	r.mu.RUnlock()
	return connector, ok
}

func (r *ConnectorRegistry) List() []Connector {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	connectors := make([]Connector, 0, len(keys))
	for _, id := range keys {
		connectors = append(connectors, r.connectors[id])
	}
	return connectors
}

func (r *ConnectorRegistry) Seal() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *ConnectorRegistry) Sealed() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

var _ Registry = (*ConnectorRegistry)(nil)
