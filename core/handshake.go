package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultHandshakeTTL = 10 * time.Minute

var (
	ErrHandshakeNotFound = errors.New("core: handshake not found")
	ErrHandshakeConsumed = errors.New("core: handshake already consumed")
	ErrHandshakeExpired  = errors.New("core: handshake expired")
)

// HandshakeRecord is the server-side half of a pending PKCE flow. The code
// verifier stays here; it is only echoed to callers when the configuration
// explicitly exposes it for development flows. ConnectionName and Settings
// carry what the callback needs to upsert the connection, so the callback
// request itself can stay minimal.
type HandshakeRecord struct {
	State          string
	TenantID       string
	ConnectorID    string
	ConnectionName string
	RedirectURI    string
	Scopes         []string
	CodeVerifier   string
	CodeChallenge  string
	Settings       map[string]any
	Metadata       map[string]any
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// HandshakeStore persists pending handshakes keyed by state. Consume is a
// check-and-set: exactly one caller receives the record, later callers get
// ErrHandshakeConsumed until the tombstone ages out.
type HandshakeStore interface {
	Save(ctx context.Context, record HandshakeRecord) error
	Consume(ctx context.Context, state string) (HandshakeRecord, error)
}

type memoryHandshakeEntry struct {
	record     HandshakeRecord
	consumedAt *time.Time
}

type MemoryHandshakeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*memoryHandshakeEntry
}

func NewMemoryHandshakeStore(ttl time.Duration) *MemoryHandshakeStore {
	return NewMemoryHandshakeStoreWithLimits(ttl, 0)
}

// NewMemoryHandshakeStoreWithLimits bounds the store to maxEntries live
// records; zero means unbounded. Expired records and aged-out tombstones are
// swept on every Save.
func NewMemoryHandshakeStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryHandshakeStore {
	if ttl <= 0 {
		ttl = defaultHandshakeTTL
	}
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &MemoryHandshakeStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]*memoryHandshakeEntry{},
	}
}

func (s *MemoryHandshakeStore) Save(_ context.Context, record HandshakeRecord) error {
	if s == nil {
		return fmt.Errorf("core: handshake store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: handshake state is required")
	}
	record.State = state

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		if _, exists := s.entries[state]; !exists {
			return fmt.Errorf("core: handshake store is full")
		}
	}
	s.entries[state] = &memoryHandshakeEntry{record: cloneHandshakeRecord(record)}
	return nil
}

func (s *MemoryHandshakeStore) Consume(_ context.Context, state string) (HandshakeRecord, error) {
	if s == nil {
		return HandshakeRecord{}, fmt.Errorf("core: handshake store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return HandshakeRecord{}, fmt.Errorf("core: handshake state is required")
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return HandshakeRecord{}, ErrHandshakeNotFound
	}
	if entry.consumedAt != nil {
		return HandshakeRecord{}, ErrHandshakeConsumed
	}
	if now.After(entry.record.ExpiresAt) {
		delete(s.entries, state)
		return HandshakeRecord{}, ErrHandshakeExpired
	}
	consumed := now
	entry.consumedAt = &consumed
	return cloneHandshakeRecord(entry.record), nil
}

// sweepLocked drops expired pending records and consumed tombstones older
// than one TTL past their expiry. Caller holds the mutex.
func (s *MemoryHandshakeStore) sweepLocked(now time.Time) {
	for state, entry := range s.entries {
		cutoff := entry.record.ExpiresAt
		if entry.consumedAt != nil {
			cutoff = cutoff.Add(s.ttl)
		}
		if now.After(cutoff) {
			delete(s.entries, state)
		}
	}
}

func cloneHandshakeRecord(record HandshakeRecord) HandshakeRecord {
	cloned := record
	if len(record.Scopes) > 0 {
		cloned.Scopes = append([]string{}, record.Scopes...)
	}
	cloned.Settings = copyAnyMap(record.Settings)
	cloned.Metadata = copyAnyMap(record.Metadata)
	return cloned
}

func copyAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	copied := make(map[string]any, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return copied
}

var _ HandshakeStore = (*MemoryHandshakeStore)(nil)
