package connectors

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-connectors/core"
)

type ConnectorPack struct {
	Name       string
	Connectors []core.Connector
}

type CapabilityPack struct {
	Name         string
	ConnectorID  string
	Capabilities []core.Capability
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	connectorPacks  map[string]ConnectorPack
	capabilityPacks map[string]CapabilityPack
	bundles         map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		connectorPacks:  map[string]ConnectorPack{},
		capabilityPacks: map[string]CapabilityPack{},
		bundles:         map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterConnectorPack(pack ConnectorPack) error {
	if h == nil {
		return fmt.Errorf("connectors: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("connectors: connector pack name is required")
	}
	if len(pack.Connectors) == 0 {
		return fmt.Errorf("connectors: connector pack %q has no connectors", name)
	}

	normalized := ConnectorPack{
		Name:       name,
		Connectors: append([]core.Connector(nil), pack.Connectors...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.connectorPacks[name]; exists {
		return fmt.Errorf("connectors: connector pack %q already registered", name)
	}
	h.connectorPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCapabilityPack(pack CapabilityPack) error {
	if h == nil {
		return fmt.Errorf("connectors: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	connectorID := strings.TrimSpace(strings.ToLower(pack.ConnectorID))
	if name == "" {
		return fmt.Errorf("connectors: capability pack name is required")
	}
	if connectorID == "" {
		return fmt.Errorf("connectors: capability pack %q connector id is required", name)
	}
	if len(pack.Capabilities) == 0 {
		return fmt.Errorf("connectors: capability pack %q has no capabilities", name)
	}

	normalized := CapabilityPack{
		Name:        name,
		ConnectorID: connectorID,
		Capabilities: append(
			[]core.Capability(nil),
			pack.Capabilities...,
		),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.capabilityPacks[name]; exists {
		return fmt.Errorf("connectors: capability pack %q already registered", name)
	}
	h.capabilityPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("connectors: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("connectors: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("connectors: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("connectors: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyConnectorPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("connectors: registry is required")
	}

	packs := h.ConnectorPacks()
	for _, pack := range packs {
		for _, connector := range pack.Connectors {
			if connector == nil {
				return fmt.Errorf("connectors: connector pack %q contains nil connector", pack.Name)
			}
			if err := registry.Register(connector); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("connectors: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ConnectorPacks() []ConnectorPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.connectorPacks))
	for name := range h.connectorPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ConnectorPack, 0, len(names))
	for _, name := range names {
		pack := h.connectorPacks[name]
		out = append(out, ConnectorPack{
			Name:       pack.Name,
			Connectors: append([]core.Connector(nil), pack.Connectors...),
		})
	}
	return out
}

func (h *ExtensionHooks) Capabilities(connectorID string) []core.Capability {
	if h == nil {
		return nil
	}
	connectorID = strings.TrimSpace(strings.ToLower(connectorID))
	h.mu.RLock()
	defer h.mu.RUnlock()

	packNames := make([]string, 0, len(h.capabilityPacks))
	for name, pack := range h.capabilityPacks {
		if pack.ConnectorID == connectorID {
			packNames = append(packNames, name)
		}
	}
	sort.Strings(packNames)

	out := []core.Capability{}
	for _, name := range packNames {
		pack := h.capabilityPacks[name]
		out = append(out, pack.Capabilities...)
	}
	return append([]core.Capability(nil), out...)
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
