package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// requireTextCode asserts that err unwraps to a structured error carrying
// the given connector text code and returns it for further asserts.
func requireTextCode(t *testing.T, err error, textCode string) *goerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", textCode)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected structured error, got %T: %v", err, err)
	}
	if richErr.TextCode != textCode {
		t.Fatalf("expected code %s, got %s (%v)", textCode, richErr.TextCode, err)
	}
	return richErr
}

type testConnector struct {
	descriptor   ConnectorDescriptor
	validateFn   func(context.Context, ConnectorConfig) (ValidationResult, error)
	probeFn      func(context.Context, ConnectorConfig) (ProbeResult, error)
	executeFn    func(context.Context, ConnectorConfig, JobSpec) (JobResult, error)
	containersFn func(context.Context, ConnectorConfig, PageRequest) (Page[Container], error)
	itemsFn      func(context.Context, ConnectorConfig, string, PageRequest) (Page[Item], error)
	commentsFn   func(context.Context, ConnectorConfig, string, PageRequest) (Page[Comment], error)
	registerFn   func(context.Context, ConnectorConfig, WebhookTarget) (WebhookHandle, error)
	unregisterFn func(context.Context, ConnectorConfig, WebhookHandle) error
}

func newTestConnector(id string, methods []AuthMethod, capabilities ...Capability) *testConnector {
	return &testConnector{
		descriptor: ConnectorDescriptor{
			ID:           id,
			Name:         id,
			Group:        ConnectorGroupSaaS,
			AuthMethods:  methods,
			Capabilities: capabilities,
		},
	}
}

func (c *testConnector) Descriptor() ConnectorDescriptor {
	return c.descriptor
}

func (c *testConnector) Validate(ctx context.Context, cfg ConnectorConfig) (ValidationResult, error) {
	if c.validateFn != nil {
		return c.validateFn(ctx, cfg)
	}
	return ValidationResult{OK: true}, nil
}

func (c *testConnector) Probe(ctx context.Context, cfg ConnectorConfig) (ProbeResult, error) {
	if c.probeFn != nil {
		return c.probeFn(ctx, cfg)
	}
	return ProbeResult{Reachable: true}, nil
}

func (c *testConnector) Execute(ctx context.Context, cfg ConnectorConfig, spec JobSpec) (JobResult, error) {
	if c.executeFn != nil {
		return c.executeFn(ctx, cfg, spec)
	}
	return JobResult{}, nil
}

func (c *testConnector) ListContainers(ctx context.Context, cfg ConnectorConfig, page PageRequest) (Page[Container], error) {
	if c.containersFn != nil {
		return c.containersFn(ctx, cfg, page)
	}
	return Page[Container]{Items: []Container{}}, nil
}

func (c *testConnector) ListItems(ctx context.Context, cfg ConnectorConfig, containerID string, page PageRequest) (Page[Item], error) {
	if c.itemsFn != nil {
		return c.itemsFn(ctx, cfg, containerID, page)
	}
	return Page[Item]{Items: []Item{}}, nil
}

func (c *testConnector) ListComments(ctx context.Context, cfg ConnectorConfig, itemID string, page PageRequest) (Page[Comment], error) {
	if c.commentsFn != nil {
		return c.commentsFn(ctx, cfg, itemID, page)
	}
	return Page[Comment]{Items: []Comment{}}, nil
}

func (c *testConnector) RegisterWebhook(ctx context.Context, cfg ConnectorConfig, target WebhookTarget) (WebhookHandle, error) {
	if c.registerFn != nil {
		return c.registerFn(ctx, cfg, target)
	}
	return WebhookHandle{ID: "wh_1", ProviderWebhookID: "provider_wh_1"}, nil
}

func (c *testConnector) UnregisterWebhook(ctx context.Context, cfg ConnectorConfig, handle WebhookHandle) error {
	if c.unregisterFn != nil {
		return c.unregisterFn(ctx, cfg, handle)
	}
	return nil
}

type testOAuthConnector struct {
	*testConnector
	beginFn    func(context.Context, BeginAuthRequest) (BeginAuthResponse, error)
	completeFn func(context.Context, CompleteAuthRequest) (CompleteAuthResponse, error)
}

func newTestOAuthConnector(id string, capabilities ...Capability) *testOAuthConnector {
	return &testOAuthConnector{
		testConnector: newTestConnector(id, []AuthMethod{AuthMethodOAuth2}, capabilities...),
	}
}

func (c *testOAuthConnector) BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error) {
	if c.beginFn != nil {
		return c.beginFn(ctx, req)
	}
	return BeginAuthResponse{
		AuthorizationURL: "https://provider.test/authorize?state=" + req.State,
		State:            req.State,
		CodeChallenge:    req.CodeChallenge,
		Scopes:           append([]string(nil), req.Scopes...),
	}, nil
}

func (c *testOAuthConnector) CompleteAuth(ctx context.Context, req CompleteAuthRequest) (CompleteAuthResponse, error) {
	if c.completeFn != nil {
		return c.completeFn(ctx, req)
	}
	expires := time.Now().UTC().Add(30 * time.Minute)
	return CompleteAuthResponse{
		ExternalAccountID: "acct_1",
		Credential: ActiveCredential{
			TokenType:    "bearer",
			AccessToken:  "access_" + req.Code,
			RefreshToken: "refresh_" + req.Code,
			ExpiresAt:    &expires,
			Refreshable:  true,
		},
		GrantedScopes: []string{"read"},
	}, nil
}

type revokingConnector struct {
	*testConnector
	revokeFn func(context.Context, ConnectorConfig) error
}

func (c *revokingConnector) RevokeCredential(ctx context.Context, cfg ConnectorConfig) error {
	if c.revokeFn != nil {
		return c.revokeFn(ctx, cfg)
	}
	return nil
}

type testVault struct {
	mode       VaultMode
	encryptErr error
	decryptErr error
}

func (v *testVault) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if v.encryptErr != nil {
		return nil, v.encryptErr
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test vault: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (v *testVault) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if v.decryptErr != nil {
		return nil, v.decryptErr
	}
	value := strings.TrimSpace(string(ciphertext))
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test vault: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test vault: decode ciphertext: %w", err)
	}
	return decoded, nil
}

func (v *testVault) Mode() VaultMode {
	if v.mode == "" {
		return VaultModePersistent
	}
	return v.mode
}

func (v *testVault) Metadata() (string, int) {
	return "test-key", 1
}

type memoryConnectionStore struct {
	mu              sync.Mutex
	next            int
	byID            map[string]Connection
	upsertErr       error
	updateStatusErr error
}

func newMemoryConnectionStore() *memoryConnectionStore {
	return &memoryConnectionStore{byID: map[string]Connection{}}
}

func (s *memoryConnectionStore) Upsert(_ context.Context, in UpsertConnectionInput) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return Connection{}, s.upsertErr
	}
	tenantID := strings.TrimSpace(in.TenantID)
	connectorID := strings.TrimSpace(in.ConnectorID)
	if tenantID == "" || connectorID == "" {
		return Connection{}, fmt.Errorf("tenant id and connector id are required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "default"
	}
	status := in.Status
	if status == "" {
		status = ConnectionStatusPending
	}

	now := time.Now().UTC()
	for id, existing := range s.byID {
		if existing.TenantID != tenantID || existing.ConnectorID != connectorID || existing.Name != name {
			continue
		}
		existing.AuthMethod = in.AuthMethod
		existing.Status = status
		if in.Settings != nil {
			existing.Settings = copyAnyMap(in.Settings)
		}
		if strings.TrimSpace(in.ExternalAccountID) != "" {
			existing.ExternalAccountID = strings.TrimSpace(in.ExternalAccountID)
		}
		existing.LastError = ""
		existing.UpdatedAt = now
		s.byID[id] = existing
		return existing, nil
	}

	s.next++
	connection := Connection{
		ID:                fmt.Sprintf("conn_%d", s.next),
		TenantID:          tenantID,
		ConnectorID:       connectorID,
		Name:              name,
		AuthMethod:        in.AuthMethod,
		Status:            status,
		Settings:          copyAnyMap(in.Settings),
		ExternalAccountID: strings.TrimSpace(in.ExternalAccountID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.byID[connection.ID] = connection
	return connection, nil
}

func (s *memoryConnectionStore) Get(_ context.Context, tenantID, connectionID string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	connection, ok := s.byID[strings.TrimSpace(connectionID)]
	if !ok || connection.TenantID != strings.TrimSpace(tenantID) {
		return Connection{}, ErrConnectionNotFound
	}
	return connection, nil
}

func (s *memoryConnectionStore) FindByTenant(_ context.Context, tenantID, connectorID string) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenantID = strings.TrimSpace(tenantID)
	connectorID = strings.TrimSpace(connectorID)
	out := []Connection{}
	for _, connection := range s.byID {
		if connection.TenantID != tenantID {
			continue
		}
		if connectorID != "" && connection.ConnectorID != connectorID {
			continue
		}
		out = append(out, connection)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryConnectionStore) UpdateStatus(_ context.Context, tenantID, connectionID string, status ConnectionStatus, reason string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateStatusErr != nil {
		return Connection{}, s.updateStatusErr
	}
	connection, ok := s.byID[strings.TrimSpace(connectionID)]
	if !ok || connection.TenantID != strings.TrimSpace(tenantID) {
		return Connection{}, ErrConnectionNotFound
	}
	if err := connection.TransitionTo(status, reason, time.Now().UTC()); err != nil {
		return Connection{}, err
	}
	s.byID[connection.ID] = connection
	return connection, nil
}

func (s *memoryConnectionStore) setStatus(connectionID string, status ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	connection := s.byID[connectionID]
	connection.Status = status
	s.byID[connectionID] = connection
}

type memoryCredentialStore struct {
	mu        sync.Mutex
	next      int
	versions  map[string][]Credential
	saveErr   error
	revokeErr error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{versions: map[string][]Credential{}}
}

func (s *memoryCredentialStore) SaveNewVersion(_ context.Context, in SaveCredentialInput) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return Credential{}, s.saveErr
	}
	existing := s.versions[in.ConnectionID]
	for i := range existing {
		if existing[i].Status == CredentialStatusActive {
			existing[i].Status = CredentialStatusRevoked
		}
	}
	s.next++
	credential := Credential{
		ID:               fmt.Sprintf("cred_%d", s.next),
		ConnectionID:     in.ConnectionID,
		Version:          len(existing) + 1,
		EncryptedPayload: append([]byte(nil), in.EncryptedPayload...),
		PayloadFormat:    in.PayloadFormat,
		PayloadVersion:   in.PayloadVersion,
		TokenType:        in.TokenType,
		RequestedScopes:  append([]string(nil), in.RequestedScopes...),
		GrantedScopes:    append([]string(nil), in.GrantedScopes...),
		ExpiresAt:        cloneTimePointer(in.ExpiresAt),
		Refreshable:      in.Refreshable,
		RotatesAt:        cloneTimePointer(in.RotatesAt),
		Status:           in.Status,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if credential.Status == "" {
		credential.Status = CredentialStatusActive
	}
	s.versions[in.ConnectionID] = append(existing, credential)
	return credential, nil
}

func (s *memoryCredentialStore) GetActiveByConnection(_ context.Context, connectionID string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, credential := range s.versions[connectionID] {
		if credential.Status == CredentialStatusActive {
			return credential, nil
		}
	}
	return Credential{}, fmt.Errorf("memory credential store: no active credential for connection %q", connectionID)
}

func (s *memoryCredentialStore) RevokeActive(_ context.Context, connectionID string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revokeErr != nil {
		return s.revokeErr
	}
	versions := s.versions[connectionID]
	for i := range versions {
		if versions[i].Status == CredentialStatusActive {
			versions[i].Status = CredentialStatusRevoked
		}
	}
	s.versions[connectionID] = versions
	return nil
}

func (s *memoryCredentialStore) versionCount(connectionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions[connectionID])
}

type memorySyncStateStore struct {
	mu     sync.Mutex
	next   int
	states map[string]SyncState
}

func newMemorySyncStateStore() *memorySyncStateStore {
	return &memorySyncStateStore{states: map[string]SyncState{}}
}

func (s *memorySyncStateStore) Get(_ context.Context, tenantID, connectionID string) (SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[tenantID+":"+connectionID]
	if !ok {
		return SyncState{}, ErrSyncStateNotFound
	}
	return state, nil
}

func (s *memorySyncStateStore) Put(_ context.Context, in PutSyncStateInput) (SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.TenantID + ":" + in.ConnectionID
	state, ok := s.states[key]
	now := time.Now().UTC()
	if !ok {
		s.next++
		state = SyncState{
			ID:           fmt.Sprintf("sync_%d", s.next),
			TenantID:     in.TenantID,
			ConnectionID: in.ConnectionID,
			CreatedAt:    now,
		}
	}
	state.Cursor = in.Cursor
	state.UpdatedAt = now
	s.states[key] = state
	return state, nil
}

type memoryAuditSink struct {
	mu        sync.Mutex
	next      int
	entries   []AuditEntry
	recordErr error
}

func newMemoryAuditSink() *memoryAuditSink {
	return &memoryAuditSink{}
}

func (s *memoryAuditSink) Record(_ context.Context, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.next++
	entry.ID = fmt.Sprintf("audit_%d", s.next)
	entry.Metadata = copyAnyMap(entry.Metadata)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryAuditSink) List(_ context.Context, filter AuditFilter) (AuditPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []AuditEntry{}
	for _, entry := range s.entries {
		if filter.TenantID != "" && entry.TenantID != filter.TenantID {
			continue
		}
		if filter.ConnectorID != "" && entry.ConnectorID != filter.ConnectorID {
			continue
		}
		if filter.ConnectionID != "" && entry.ConnectionID != filter.ConnectionID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Outcome != "" && entry.Outcome != filter.Outcome {
			continue
		}
		if filter.From != nil && entry.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && entry.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = PageLimitDefault
	}
	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	result := AuditPage{
		Entries: append([]AuditEntry{}, matched[start:end]...),
		Total:   len(matched),
		Page:    page,
		PerPage: perPage,
	}
	if end < len(matched) {
		result.NextCursor = strconv.Itoa(page + 1)
	}
	return result, nil
}

func (s *memoryAuditSink) byAction(action string) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []AuditEntry{}
	for _, entry := range s.entries {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

func (s *memoryAuditSink) lastByAction(action string) (AuditEntry, bool) {
	entries := s.byAction(action)
	if len(entries) == 0 {
		return AuditEntry{}, false
	}
	return entries[len(entries)-1], true
}

type memoryJobStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Job
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{byID: map[string]Job{}}
}

func (s *memoryJobStore) Create(_ context.Context, in CreateJobInput) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now().UTC()
	job := Job{
		ID:           fmt.Sprintf("job_%d", s.next),
		TenantID:     in.TenantID,
		ConnectorID:  in.ConnectorID,
		ConnectionID: in.ConnectionID,
		Kind:         in.Kind,
		Status:       JobStatusQueued,
		Parameters:   copyAnyMap(in.Parameters),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[job.ID] = job
	return job, nil
}

func (s *memoryJobStore) Get(_ context.Context, tenantID, jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[strings.TrimSpace(jobID)]
	if !ok || job.TenantID != strings.TrimSpace(tenantID) {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *memoryJobStore) UpdateStatus(_ context.Context, jobID string, status JobStatus, progress int, reason string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if err := job.TransitionTo(status, reason, time.Now().UTC()); err != nil {
		return Job{}, err
	}
	if progress >= 0 && job.Status != JobStatusCompleted {
		if progress > 100 {
			progress = 100
		}
		job.Progress = progress
	}
	s.byID[job.ID] = job
	return job, nil
}

func (s *memoryJobStore) SetResult(_ context.Context, jobID string, result map[string]any) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	job.Result = copyAnyMap(result)
	job.UpdatedAt = time.Now().UTC()
	s.byID[job.ID] = job
	return job, nil
}

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func (e *captureEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

type captureMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
	tags     map[string]map[string]string
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		counters: map[string]int64{},
		tags:     map[string]map[string]string{},
	}
}

func (m *captureMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
	m.tags[name] = tags
}

func (m *captureMetrics) ObserveHistogram(_ context.Context, name string, _ float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
	m.tags[name] = tags
}

func (m *captureMetrics) counterValue(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *captureMetrics) tagsFor(name string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags[name]
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
	infos    []string
}

func (l *recordingLogger) Trace(string, ...any) {}
func (l *recordingLogger) Debug(string, ...any) {}

func (l *recordingLogger) Info(message string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, message)
}

func (l *recordingLogger) Warn(message string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, message)
}

func (l *recordingLogger) Error(message string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, message)
}

func (l *recordingLogger) Fatal(string, ...any) {}

func (l *recordingLogger) WithContext(context.Context) Logger {
	return l
}

func (l *recordingLogger) hasWarning(fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, message := range l.warnings {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// testHarness bundles the service with the fakes every operation test pokes
// at. connectedID points at a ready-to-use api_key connection when the
// harness is built with a connector that supports it.
type testHarness struct {
	service     *Service
	connections *memoryConnectionStore
	credentials *memoryCredentialStore
	syncStates  *memorySyncStateStore
	audit       *memoryAuditSink
	jobs        *memoryJobStore
	vault       *testVault
}

func newTestHarness(cfg Config, connectors []Connector, extra ...Option) (*testHarness, error) {
	harness := &testHarness{
		connections: newMemoryConnectionStore(),
		credentials: newMemoryCredentialStore(),
		syncStates:  newMemorySyncStateStore(),
		audit:       newMemoryAuditSink(),
		jobs:        newMemoryJobStore(),
		vault:       &testVault{},
	}
	registry := NewConnectorRegistry()
	for _, connector := range connectors {
		if err := registry.Register(connector); err != nil {
			return nil, err
		}
	}
	options := []Option{
		WithLogger(stubLogger{}),
		WithRegistry(registry),
		WithConnectionStore(harness.connections),
		WithCredentialStore(harness.credentials),
		WithSyncStateStore(harness.syncStates),
		WithAuditSink(harness.audit),
		WithJobStore(harness.jobs),
		WithVault(harness.vault),
	}
	options = append(options, extra...)
	service, err := NewService(cfg, options...)
	if err != nil {
		return nil, err
	}
	harness.service = service
	return harness, nil
}

// activeCredentialPlaintext decrypts and decodes the stored active
// credential the way the service does, for asserting on persisted secrets.
func (h *testHarness) activeCredentialPlaintext(ctx context.Context, connectionID string) (ActiveCredential, error) {
	stored, err := h.credentials.GetActiveByConnection(ctx, connectionID)
	if err != nil {
		return ActiveCredential{}, err
	}
	plaintext, err := h.vault.Decrypt(ctx, stored.EncryptedPayload)
	if err != nil {
		return ActiveCredential{}, err
	}
	return decodeCredentialPayload(stored.PayloadFormat, plaintext)
}

// seedConnection inserts a connection row directly, bypassing the connect
// flows, and optionally an encrypted credential for it.
func (h *testHarness) seedConnection(ctx context.Context, tenantID, connectorID string, status ConnectionStatus, settings map[string]any, credential *ActiveCredential) (Connection, error) {
	connection, err := h.connections.Upsert(ctx, UpsertConnectionInput{
		TenantID:    tenantID,
		ConnectorID: connectorID,
		AuthMethod:  AuthMethodAPIKey,
		Status:      ConnectionStatusPending,
		Settings:    settings,
	})
	if err != nil {
		return Connection{}, err
	}
	if credential != nil {
		payload, encodeErr := JSONCredentialCodec{}.Encode(*credential)
		if encodeErr != nil {
			return Connection{}, encodeErr
		}
		encrypted, encryptErr := h.vault.Encrypt(ctx, payload)
		if encryptErr != nil {
			return Connection{}, encryptErr
		}
		if _, saveErr := h.credentials.SaveNewVersion(ctx, SaveCredentialInput{
			ConnectionID:     connection.ID,
			EncryptedPayload: encrypted,
			PayloadFormat:    CredentialPayloadFormatJSONV1,
			PayloadVersion:   CredentialPayloadVersionV1,
			TokenType:        credential.TokenType,
			Status:           CredentialStatusActive,
		}); saveErr != nil {
			return Connection{}, saveErr
		}
	}
	if status != connection.Status {
		h.connections.setStatus(connection.ID, status)
		connection.Status = status
	}
	return connection, nil
}
