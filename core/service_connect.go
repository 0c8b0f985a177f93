package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const defaultConnectionName = "default"

// Connect starts a connection for a tenant. The api_key method validates
// and persists in one step; oauth2 opens a PKCE handshake and hands back
// the authorization URL for the caller to redirect through.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (result ConnectResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":    req.TenantID,
		"connector_id": req.ConnectorID,
	}
	defer func() {
		connectionID := ""
		if result.Completion != nil {
			connectionID = result.Completion.ConnectionID
			fields["connection_id"] = connectionID
		}
		s.observeOperation(ctx, startedAt, "connect", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "connection.connect",
			ConnectorID:  req.ConnectorID,
			ConnectionID: connectionID,
			TargetType:   "connection",
			TargetID:     connectionID,
		}, err)
	}()

	if strings.TrimSpace(req.TenantID) == "" {
		err = s.badInput("tenant id is required")
		return ConnectResult{}, err
	}
	connector, err := s.resolveConnector(req.ConnectorID)
	if err != nil {
		return ConnectResult{}, err
	}
	descriptor := connector.Descriptor()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultConnectionName
	}

	method := req.AuthMethod
	if method == "" && len(descriptor.AuthMethods) > 0 {
		method = descriptor.AuthMethods[0]
	}
	if !descriptor.SupportsAuthMethod(method) {
		err = s.badInput(fmt.Sprintf("auth method %q is not supported by connector %q", method, descriptor.ID))
		return ConnectResult{}, err
	}
	fields["auth_method"] = string(method)

	switch method {
	case AuthMethodAPIKey:
		completion, connectErr := s.connectWithAPIKey(ctx, connector, req, name)
		if connectErr != nil {
			err = connectErr
			return ConnectResult{}, err
		}
		result = ConnectResult{Completion: &completion}
		return result, nil
	case AuthMethodOAuth2:
		handshake, beginErr := s.beginOAuthHandshake(ctx, connector, req, name)
		if beginErr != nil {
			err = beginErr
			return ConnectResult{}, err
		}
		result = ConnectResult{Handshake: &handshake}
		return result, nil
	default:
		err = s.badInput(fmt.Sprintf("unknown auth method %q", method))
		return ConnectResult{}, err
	}
}

// connectWithAPIKey validates the key against the connector, then persists
// connection and credential. The connection only flips to connected once
// the encrypted credential is safely stored, so a failed save leaves an
// honest pending row instead of a connected one without credentials.
func (s *Service) connectWithAPIKey(ctx context.Context, connector Connector, req ConnectRequest, name string) (ConnectCompletion, error) {
	if s.connectionStore == nil {
		return ConnectCompletion{}, s.mapError(fmt.Errorf("core: connection store is not configured"))
	}
	descriptor := connector.Descriptor()
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return ConnectCompletion{}, s.badInput("api key is required for api_key connect")
	}

	cfg := ConnectorConfig{
		TenantID: req.TenantID,
		Settings: req.Settings,
		Credential: ActiveCredential{
			TokenType:   string(AuthMethodAPIKey),
			AccessToken: key,
		},
	}
	if err := s.beforeProviderCall(ctx, descriptor.ID, req.TenantID, "validate"); err != nil {
		return ConnectCompletion{}, err
	}
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	validation, err := connector.Validate(callCtx, cfg)
	cancel()
	if err != nil {
		return ConnectCompletion{}, s.mapError(err)
	}
	if !validation.OK {
		wrapped := s.errorFactory(
			fmt.Sprintf("connector configuration rejected: %s", validation.Reason),
			goerrors.CategoryValidation,
		).WithTextCode(ConnectorErrorInvalidConfig)
		return ConnectCompletion{}, ensureConnectorErrorEnvelope(wrapped)
	}

	connection, err := s.connectionStore.Upsert(ctx, UpsertConnectionInput{
		TenantID:    req.TenantID,
		ConnectorID: descriptor.ID,
		Name:        name,
		AuthMethod:  AuthMethodAPIKey,
		Status:      ConnectionStatusPending,
		Settings:    req.Settings,
	})
	if err != nil {
		return ConnectCompletion{}, s.mapError(err)
	}

	saved, err := s.encryptAndSaveCredential(ctx, connection.ID, ActiveCredential{
		ConnectionID: connection.ID,
		TokenType:    string(AuthMethodAPIKey),
		AccessToken:  key,
	}, APIKeyCredentialCodec{})
	if err != nil {
		return ConnectCompletion{}, err
	}

	connection, err = s.connectionStore.UpdateStatus(ctx, req.TenantID, connection.ID, ConnectionStatusConnected, "")
	if err != nil {
		return ConnectCompletion{}, s.mapError(err)
	}

	return ConnectCompletion{
		ConnectionID:      connection.ID,
		ConnectorID:       descriptor.ID,
		TenantID:          req.TenantID,
		Status:            connection.Status,
		CredentialVersion: saved.Version,
	}, nil
}

// beginOAuthHandshake generates the PKCE material, asks the connector for
// its authorization URL, and persists the pending handshake keyed by
// state. The code verifier stays server side unless the configuration
// explicitly exposes it.
func (s *Service) beginOAuthHandshake(ctx context.Context, connector Connector, req ConnectRequest, name string) (BeginAuthResponse, error) {
	oauthConnector, ok := connector.(OAuthConnector)
	if !ok {
		wrapped := s.errorFactory(
			fmt.Sprintf("connector %q does not implement the oauth2 flow", connector.Descriptor().ID),
			goerrors.CategoryOperation,
		).WithTextCode(ConnectorErrorCapabilityUnsupported)
		return BeginAuthResponse{}, ensureConnectorErrorEnvelope(wrapped)
	}
	if s.handshakeStore == nil {
		return BeginAuthResponse{}, s.mapError(fmt.Errorf("core: handshake store is not configured"))
	}
	descriptor := connector.Descriptor()
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		return BeginAuthResponse{}, s.badInput("redirect uri is required for oauth2 connect")
	}

	state, err := GenerateHandshakeState()
	if err != nil {
		return BeginAuthResponse{}, s.mapError(err)
	}
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return BeginAuthResponse{}, s.mapError(err)
	}
	challenge := ChallengeS256(verifier)

	if err := s.beforeProviderCall(ctx, descriptor.ID, req.TenantID, "authorize"); err != nil {
		return BeginAuthResponse{}, err
	}
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	response, err := oauthConnector.BeginAuth(callCtx, BeginAuthRequest{
		ConnectorID:         descriptor.ID,
		TenantID:            req.TenantID,
		RedirectURI:         redirectURI,
		Scopes:              req.Scopes,
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: CodeChallengeMethodS256,
		Settings:            req.Settings,
		Metadata:            req.Metadata,
	})
	cancel()
	if err != nil {
		return BeginAuthResponse{}, s.mapError(err)
	}
	if strings.TrimSpace(response.State) == "" {
		response.State = state
	}
	if strings.TrimSpace(response.CodeChallenge) == "" {
		response.CodeChallenge = challenge
	}
	scopes := response.Scopes
	if len(scopes) == 0 {
		scopes = append([]string(nil), req.Scopes...)
	}

	now := time.Now().UTC()
	record := HandshakeRecord{
		State:          response.State,
		TenantID:       req.TenantID,
		ConnectorID:    descriptor.ID,
		ConnectionName: name,
		RedirectURI:    redirectURI,
		Scopes:         scopes,
		CodeVerifier:   verifier,
		CodeChallenge:  challenge,
		Settings:       req.Settings,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.handshakeTTL()),
	}
	if err := s.handshakeStore.Save(ctx, record); err != nil {
		return BeginAuthResponse{}, s.mapError(err)
	}

	response.CodeVerifier = ""
	if s.config.OAuth.ExposeVerifier {
		response.CodeVerifier = verifier
	}
	return response, nil
}

func (s *Service) handshakeTTL() time.Duration {
	if s == nil || s.config.OAuth.HandshakeTTL <= 0 {
		return defaultHandshakeTTL
	}
	return s.config.OAuth.HandshakeTTL
}

// CompleteConnect finishes a pending oauth2 handshake. Consume is first so
// a replayed callback fails before any provider traffic; the server-held
// verifier is preferred over anything the caller supplies.
func (s *Service) CompleteConnect(ctx context.Context, req CompleteConnectRequest) (completion ConnectCompletion, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":    req.TenantID,
		"connector_id": req.ConnectorID,
	}
	defer func() {
		if completion.ConnectionID != "" {
			fields["connection_id"] = completion.ConnectionID
		}
		s.observeOperation(ctx, startedAt, "complete_connect", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     firstNonEmpty(completion.TenantID, req.TenantID),
			Action:       "connection.complete",
			ConnectorID:  firstNonEmpty(completion.ConnectorID, req.ConnectorID),
			ConnectionID: completion.ConnectionID,
			TargetType:   "connection",
			TargetID:     completion.ConnectionID,
		}, err)
	}()

	state := strings.TrimSpace(req.State)
	if state == "" {
		err = s.badInput("handshake state is required")
		return ConnectCompletion{}, err
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		err = s.badInput("authorization code is required")
		return ConnectCompletion{}, err
	}
	if s.handshakeStore == nil {
		err = s.mapError(fmt.Errorf("core: handshake store is not configured"))
		return ConnectCompletion{}, err
	}

	record, err := s.handshakeStore.Consume(ctx, state)
	if err != nil {
		err = s.mapError(err)
		return ConnectCompletion{}, err
	}
	if reqTenant := strings.TrimSpace(req.TenantID); reqTenant != "" && reqTenant != record.TenantID {
		err = s.invalidState("handshake tenant mismatch")
		return ConnectCompletion{}, err
	}
	if reqConnector := strings.TrimSpace(req.ConnectorID); reqConnector != "" && reqConnector != record.ConnectorID {
		err = s.invalidState("handshake connector mismatch")
		return ConnectCompletion{}, err
	}
	if reqRedirect := strings.TrimSpace(req.RedirectURI); reqRedirect != "" && record.RedirectURI != "" && reqRedirect != record.RedirectURI {
		err = s.invalidState("handshake redirect uri mismatch")
		return ConnectCompletion{}, err
	}
	fields["tenant_id"] = record.TenantID
	fields["connector_id"] = record.ConnectorID

	oauthConnector, err := s.resolveOAuthConnector(record.ConnectorID)
	if err != nil {
		return ConnectCompletion{}, err
	}

	verifier := record.CodeVerifier
	if verifier == "" {
		verifier = strings.TrimSpace(req.CodeVerifier)
	}
	settings := mergeSettings(record.Settings, req.Settings)

	if err = s.beforeProviderCall(ctx, record.ConnectorID, record.TenantID, "token"); err != nil {
		return ConnectCompletion{}, err
	}
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	authResult, err := oauthConnector.CompleteAuth(callCtx, CompleteAuthRequest{
		ConnectorID:  record.ConnectorID,
		TenantID:     record.TenantID,
		Code:         code,
		CodeVerifier: verifier,
		RedirectURI:  record.RedirectURI,
		Settings:     settings,
		Metadata:     mergeSettings(record.Metadata, req.Metadata),
	})
	cancel()
	if err != nil {
		err = s.mapError(err)
		return ConnectCompletion{}, err
	}

	name := record.ConnectionName
	if trimmed := strings.TrimSpace(req.Name); trimmed != "" {
		name = trimmed
	}
	if name == "" {
		name = defaultConnectionName
	}

	if s.connectionStore == nil {
		err = s.mapError(fmt.Errorf("core: connection store is not configured"))
		return ConnectCompletion{}, err
	}
	connection, err := s.connectionStore.Upsert(ctx, UpsertConnectionInput{
		TenantID:          record.TenantID,
		ConnectorID:       record.ConnectorID,
		Name:              name,
		AuthMethod:        AuthMethodOAuth2,
		Status:            ConnectionStatusPending,
		Settings:          settings,
		ExternalAccountID: authResult.ExternalAccountID,
	})
	if err != nil {
		err = s.mapError(err)
		return ConnectCompletion{}, err
	}

	credential := authResult.Credential
	credential.ConnectionID = connection.ID
	if len(credential.RequestedScopes) == 0 {
		credential.RequestedScopes = append([]string(nil), record.Scopes...)
	}
	if len(credential.GrantedScopes) == 0 {
		credential.GrantedScopes = append([]string(nil), authResult.GrantedScopes...)
	}

	saved, err := s.encryptAndSaveCredential(ctx, connection.ID, credential, s.credentialCodec)
	if err != nil {
		return ConnectCompletion{}, err
	}

	connection, err = s.connectionStore.UpdateStatus(ctx, record.TenantID, connection.ID, ConnectionStatusConnected, "")
	if err != nil {
		err = s.mapError(err)
		return ConnectCompletion{}, err
	}

	completion = ConnectCompletion{
		ConnectionID:      connection.ID,
		ConnectorID:       record.ConnectorID,
		TenantID:          record.TenantID,
		Status:            connection.Status,
		ExternalAccountID: authResult.ExternalAccountID,
		CredentialVersion: saved.Version,
	}
	return completion, nil
}

// Revoke disconnects a connection. Local revocation always wins: the
// provider-side revoke is best effort and its failure only logs. Revoking
// an already revoked connection succeeds without touching anything.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":     req.TenantID,
		"connection_id": req.ConnectionID,
	}
	connectorID := ""
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke", err, fields)
		s.recordAudit(ctx, AuditEntry{
			TenantID:     req.TenantID,
			Action:       "connection.revoke",
			ConnectorID:  connectorID,
			ConnectionID: req.ConnectionID,
			TargetType:   "connection",
			TargetID:     req.ConnectionID,
		}, err)
	}()

	connection, err := s.getConnection(ctx, req.TenantID, req.ConnectionID)
	if err != nil {
		return err
	}
	connectorID = connection.ConnectorID
	fields["connector_id"] = connection.ConnectorID

	if connection.Status == ConnectionStatusRevoked {
		return nil
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "revoked"
	}

	s.revokeProviderSide(ctx, connection)

	if s.credentialStore != nil {
		if revokeErr := s.credentialStore.RevokeActive(ctx, connection.ID, reason); revokeErr != nil {
			err = s.mapError(revokeErr)
			return err
		}
	}
	if _, updateErr := s.connectionStore.UpdateStatus(ctx, connection.TenantID, connection.ID, ConnectionStatusRevoked, reason); updateErr != nil {
		err = s.mapError(updateErr)
		return err
	}
	return nil
}

// revokeProviderSide asks the connector to drop the upstream grant when it
// knows how. Failures are logged and swallowed so the local revoke cannot
// be held hostage by a dead provider.
func (s *Service) revokeProviderSide(ctx context.Context, connection Connection) {
	connector, resolveErr := s.resolveConnector(connection.ConnectorID)
	if resolveErr != nil {
		return
	}
	revoker, ok := connector.(CredentialRevoker)
	if !ok {
		return
	}
	credential, credErr := s.activeCredential(ctx, connection)
	if credErr != nil {
		s.logWarn(ctx, "credential load for provider-side revoke failed", map[string]any{
			"connection_id": connection.ID,
			"error":         credErr.Error(),
		})
		return
	}
	callCtx, cancel := providerContext(ctx, s.callTimeout())
	defer cancel()
	if revokeErr := revoker.RevokeCredential(callCtx, ConnectorConfig{
		TenantID:     connection.TenantID,
		ConnectionID: connection.ID,
		Settings:     connection.Settings,
		Credential:   credential,
	}); revokeErr != nil {
		s.logWarn(ctx, "provider-side credential revoke failed", map[string]any{
			"connection_id": connection.ID,
			"connector_id":  connection.ConnectorID,
			"error":         revokeErr.Error(),
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
