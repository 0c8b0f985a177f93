package providers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OAuth2Config drives the shared authorization-code exchange. Connectors
// supply their provider endpoints and client registration; the handshake
// state and PKCE material arrive per request from the orchestrating
// service.
type OAuth2Config struct {
	ConnectorID         string
	AuthURL             string
	TokenURL            string
	RevokeURL           string
	ClientID            string
	ClientSecret        string
	ClientSecretInBody  bool
	DefaultScopes       []string
	ExtraAuthParams     map[string]string
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          HTTPDoer
}

// OAuth2 implements the oauth2 half of the connector contract: building
// the authorization URL with the PKCE challenge and exchanging the
// callback code (plus verifier) for tokens. Connectors embed it next to
// BaseConnector.
type OAuth2 struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func NewOAuth2(cfg OAuth2Config) (*OAuth2, error) {
	cfg.ConnectorID = strings.TrimSpace(strings.ToLower(cfg.ConnectorID))
	if cfg.ConnectorID == "" {
		return nil, fmt.Errorf("providers: connector id is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for connector %q", cfg.ConnectorID)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for connector %q", cfg.ConnectorID)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for connector %q", cfg.ConnectorID)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.RevokeURL = strings.TrimSpace(cfg.RevokeURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.DefaultScopes = normalizeScopes(cfg.DefaultScopes)
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (o *OAuth2) ConnectorID() string {
	if o == nil {
		return ""
	}
	return o.cfg.ConnectorID
}

func (o *OAuth2) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if o == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth2 exchange is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		generated, err := generateAuthState()
		if err != nil {
			return core.BeginAuthResponse{}, err
		}
		state = generated
	}
	scopes := normalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = append([]string(nil), o.cfg.DefaultScopes...)
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", o.cfg.ClientID)
	if strings.TrimSpace(req.RedirectURI) != "" {
		values.Set("redirect_uri", strings.TrimSpace(req.RedirectURI))
	}
	values.Set("scope", strings.Join(scopes, " "))
	values.Set("state", state)
	if challenge := strings.TrimSpace(req.CodeChallenge); challenge != "" {
		values.Set("code_challenge", challenge)
		method := strings.TrimSpace(req.CodeChallengeMethod)
		if method == "" {
			method = core.CodeChallengeMethodS256
		}
		values.Set("code_challenge_method", method)
	}
	for key, value := range o.cfg.ExtraAuthParams {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		values.Set(key, value)
	}

	authURL := o.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}

	metadata := cloneMetadata(req.Metadata)
	metadata["connector_id"] = o.cfg.ConnectorID
	metadata["token_url"] = o.cfg.TokenURL

	return core.BeginAuthResponse{
		AuthorizationURL: authURL,
		State:            state,
		CodeChallenge:    strings.TrimSpace(req.CodeChallenge),
		Scopes:           scopes,
		Metadata:         metadata,
	}, nil
}

func (o *OAuth2) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if o == nil {
		return core.CompleteAuthResponse{}, fmt.Errorf("providers: oauth2 exchange is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.CompleteAuthResponse{}, fmt.Errorf("providers: auth code is required")
	}

	requested := normalizeScopes(readStringSlice(req.Metadata, "requested_scopes"))
	if len(requested) == 0 {
		requested = append([]string(nil), o.cfg.DefaultScopes...)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	if verifier := strings.TrimSpace(req.CodeVerifier); verifier != "" {
		form.Set("code_verifier", verifier)
	}

	token, err := o.fetchToken(ctx, form)
	if err != nil {
		return core.CompleteAuthResponse{}, err
	}

	granted := normalizeScopes(parseScopeList(token.Scope))
	if len(granted) == 0 {
		granted = normalizeScopes(readStringSlice(req.Metadata, "granted_scopes"))
	}
	if len(granted) == 0 {
		granted = append([]string(nil), requested...)
	}

	externalAccountID := strings.TrimSpace(readString(req.Metadata, "external_account_id"))
	if externalAccountID == "" {
		externalAccountID = fmt.Sprintf("%s:%s", o.cfg.ConnectorID, req.TenantID)
	}

	now := o.cfg.Now().UTC()
	expiresAt := o.resolveExpiresAt(now, token.ExpiresIn)
	refreshToken := strings.TrimSpace(token.RefreshToken)
	tokenType := normalizeTokenType(token.TokenType)
	credential := core.ActiveCredential{
		TokenType:       tokenType,
		AccessToken:     strings.TrimSpace(token.AccessToken),
		RefreshToken:    refreshToken,
		RequestedScopes: append([]string(nil), requested...),
		GrantedScopes:   append([]string(nil), granted...),
		ExpiresAt:       expiresAt,
		Refreshable:     refreshToken != "",
		Metadata: map[string]any{
			"connector_id": o.cfg.ConnectorID,
			"token_url":    o.cfg.TokenURL,
		},
	}

	return core.CompleteAuthResponse{
		ExternalAccountID: externalAccountID,
		Credential:        credential,
		GrantedScopes:     append([]string(nil), granted...),
		Metadata: map[string]any{
			"connector_id": o.cfg.ConnectorID,
			"token_url":    o.cfg.TokenURL,
		},
	}, nil
}

// RevokeToken posts a best-effort revocation to the provider when the
// connector registration carries a revoke endpoint. Connectors that expose
// CredentialRevoker delegate here.
func (o *OAuth2) RevokeToken(ctx context.Context, token string) error {
	if o == nil {
		return fmt.Errorf("providers: oauth2 exchange is nil")
	}
	if strings.TrimSpace(o.cfg.RevokeURL) == "" {
		return fmt.Errorf("providers: connector %q has no revoke endpoint", o.cfg.ConnectorID)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("providers: token is required for revoke")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", o.cfg.ClientID)
	if o.cfg.ClientSecretInBody && o.cfg.ClientSecret != "" {
		form.Set("client_secret", o.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, o.cfg.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		o.cfg.RevokeURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if !o.cfg.ClientSecretInBody && o.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(o.cfg.ClientID, o.cfg.ClientSecret)
	}

	response, err := o.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("providers: revoke request failed: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxTokenResponseBodyBytes))

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("providers: revoke endpoint error (%d)", response.StatusCode)
	}
	return nil
}

func (o *OAuth2) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if o == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 exchange is nil")
	}
	if o.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(o.cfg.TokenURL) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token url is required for connector %q", o.cfg.ConnectorID)
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", o.cfg.ClientID)
	if o.cfg.ClientSecretInBody && o.cfg.ClientSecret != "" {
		values.Set("client_secret", o.cfg.ClientSecret)
	}

	requestCtx := ctx
	cancel := func() {}
	if o.cfg.TokenRequestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, o.cfg.TokenRequestTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		o.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !o.cfg.ClientSecretInBody && o.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(o.cfg.ClientID, o.cfg.ClientSecret)
	}

	response, err := o.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, fmt.Errorf(
			"providers: token endpoint error (%d): %s",
			response.StatusCode,
			describeTokenError(payload),
		)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint error: %s", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint response missing access token")
	}
	return payload, nil
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		payload, err := parseTokenPayloadJSON(body)
		if err != nil {
			return tokenEndpointPayload{}, err
		}
		return payload, nil
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		payload, err := parseTokenPayloadForm(body)
		if err != nil {
			return tokenEndpointPayload{}, err
		}
		return payload, nil
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(bytesTrimSpace(body)) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(bytesTrimSpace(body)) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func (o *OAuth2) resolveExpiresAt(now time.Time, expiresIn int64) *time.Time {
	ttl := o.cfg.TokenTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expiresAt := now.Add(ttl)
	return &expiresAt
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	parts := strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
	return parts
}

func bytesTrimSpace(value []byte) []byte {
	return []byte(strings.TrimSpace(string(value)))
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func cloneMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		normalized := strings.TrimSpace(strings.ToLower(value))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		values = append(values, normalized)
	}
	sort.Strings(values)
	return values
}

func readString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, ok := metadata[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func readStringSlice(metadata map[string]any, key string) []string {
	if len(metadata) == 0 {
		return []string{}
	}
	value, ok := metadata[key]
	if !ok || value == nil {
		return []string{}
	}
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			itemValue := strings.TrimSpace(fmt.Sprint(item))
			if itemValue != "" && itemValue != "<nil>" {
				items = append(items, itemValue)
			}
		}
		return items
	default:
		trimmed := strings.TrimSpace(fmt.Sprint(typed))
		if trimmed == "" || trimmed == "<nil>" {
			return []string{}
		}
		if !strings.Contains(trimmed, ",") {
			return []string{trimmed}
		}
		parts := strings.Split(trimmed, ",")
		items := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part != "" {
				items = append(items, part)
			}
		}
		return items
	}
}

func generateAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("providers: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
