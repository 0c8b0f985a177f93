// Package core contains the connector contracts, domain entities, and
// orchestration service. Adapters and stores depend on this package; core
// must not depend on provider-specific or transport-specific code.
package core
