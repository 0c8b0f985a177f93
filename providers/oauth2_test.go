package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-connectors/core"
)

func TestOAuth2_BeginAuthBuildsAuthorizationURL(t *testing.T) {
	exchange, err := NewOAuth2(OAuth2Config{
		ConnectorID:     "jira",
		AuthURL:         "https://auth.atlassian.com/authorize",
		TokenURL:        "https://auth.atlassian.com/oauth/token",
		ClientID:        "client-123",
		ClientSecret:    "secret-456",
		DefaultScopes:   []string{"read:jira-work", "offline_access"},
		ExtraAuthParams: map[string]string{"audience": "api.atlassian.com", "prompt": "consent"},
	})
	if err != nil {
		t.Fatalf("new oauth2: %v", err)
	}

	begin, err := exchange.BeginAuth(context.Background(), core.BeginAuthRequest{
		ConnectorID:         "jira",
		TenantID:            "t1",
		RedirectURI:         "https://app.example/callback",
		State:               "state_1",
		CodeChallenge:       "challenge-abc",
		CodeChallengeMethod: core.CodeChallengeMethodS256,
	})
	if err != nil {
		t.Fatalf("begin auth: %v", err)
	}
	if begin.State != "state_1" {
		t.Fatalf("expected state_1, got %q", begin.State)
	}

	parsed, err := url.Parse(begin.AuthorizationURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	query := parsed.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("expected authorization code response type")
	}
	if query.Get("client_id") != "client-123" {
		t.Fatalf("expected client_id query value")
	}
	if query.Get("redirect_uri") != "https://app.example/callback" {
		t.Fatalf("expected redirect_uri query value")
	}
	if query.Get("state") != "state_1" {
		t.Fatalf("expected state query value")
	}
	if query.Get("code_challenge") != "challenge-abc" {
		t.Fatalf("expected code_challenge query value")
	}
	if query.Get("code_challenge_method") != core.CodeChallengeMethodS256 {
		t.Fatalf("expected S256 code_challenge_method")
	}
	if query.Get("audience") != "api.atlassian.com" {
		t.Fatalf("expected audience extra param")
	}
	if !strings.Contains(query.Get("scope"), "read:jira-work") {
		t.Fatalf("expected scope query to include default scopes, got %q", query.Get("scope"))
	}
}

func TestOAuth2_BeginAuthGeneratesStateWhenMissing(t *testing.T) {
	exchange, err := NewOAuth2(OAuth2Config{
		ConnectorID: "jira",
		AuthURL:     "https://auth.atlassian.com/authorize",
		TokenURL:    "https://auth.atlassian.com/oauth/token",
		ClientID:    "client-123",
	})
	if err != nil {
		t.Fatalf("new oauth2: %v", err)
	}

	begin, err := exchange.BeginAuth(context.Background(), core.BeginAuthRequest{
		RedirectURI: "https://app.example/callback",
	})
	if err != nil {
		t.Fatalf("begin auth: %v", err)
	}
	if strings.TrimSpace(begin.State) == "" {
		t.Fatalf("expected generated state")
	}
}

func TestOAuth2_CompleteAuthExchangesCodeWithVerifier(t *testing.T) {
	var captured url.Values
	var authHeaderOK bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		captured = r.PostForm
		user, pass, ok := r.BasicAuth()
		authHeaderOK = ok && user == "client-123" && pass == "secret-456"
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "atk_1",
			"token_type": "Bearer",
			"refresh_token": "rtk_1",
			"scope": "read:jira-work offline_access",
			"expires_in": 3600
		}`))
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exchange, err := NewOAuth2(OAuth2Config{
		ConnectorID:  "jira",
		AuthURL:      "https://auth.atlassian.com/authorize",
		TokenURL:     server.URL,
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new oauth2: %v", err)
	}

	complete, err := exchange.CompleteAuth(context.Background(), core.CompleteAuthRequest{
		ConnectorID:  "jira",
		TenantID:     "t1",
		Code:         "code_123",
		CodeVerifier: "verifier-xyz",
		RedirectURI:  "https://app.example/callback",
	})
	if err != nil {
		t.Fatalf("complete auth: %v", err)
	}

	if captured.Get("grant_type") != "authorization_code" {
		t.Fatalf("expected authorization_code grant, got %q", captured.Get("grant_type"))
	}
	if captured.Get("code") != "code_123" {
		t.Fatalf("expected code form value")
	}
	if captured.Get("code_verifier") != "verifier-xyz" {
		t.Fatalf("expected code_verifier form value")
	}
	if captured.Get("redirect_uri") != "https://app.example/callback" {
		t.Fatalf("expected redirect_uri form value")
	}
	if !authHeaderOK {
		t.Fatalf("expected client secret via basic auth")
	}

	if complete.Credential.AccessToken != "atk_1" {
		t.Fatalf("unexpected access token %q", complete.Credential.AccessToken)
	}
	if complete.Credential.TokenType != "bearer" {
		t.Fatalf("expected normalized bearer token type, got %q", complete.Credential.TokenType)
	}
	if !complete.Credential.Refreshable {
		t.Fatalf("expected refreshable credential")
	}
	if complete.Credential.ExpiresAt == nil || !complete.Credential.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expires at: %v", complete.Credential.ExpiresAt)
	}
	if len(complete.GrantedScopes) != 2 {
		t.Fatalf("expected granted scopes from token payload, got %#v", complete.GrantedScopes)
	}
}

func TestOAuth2_CompleteAuthSurfacesTokenEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"authorization code expired"}`))
	}))
	defer server.Close()

	exchange, err := NewOAuth2(OAuth2Config{
		ConnectorID: "jira",
		AuthURL:     "https://auth.atlassian.com/authorize",
		TokenURL:    server.URL,
		ClientID:    "client-123",
	})
	if err != nil {
		t.Fatalf("new oauth2: %v", err)
	}

	_, err = exchange.CompleteAuth(context.Background(), core.CompleteAuthRequest{Code: "expired"})
	if err == nil {
		t.Fatalf("expected token endpoint error")
	}
	if !strings.Contains(err.Error(), "authorization code expired") {
		t.Fatalf("expected error description in message, got %v", err)
	}
}

func TestOAuth2_CompleteAuthParsesFormEncodedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("access_token=atk_form&token_type=bearer&scope=read%3Ajira-work&expires_in=1200"))
	}))
	defer server.Close()

	exchange, err := NewOAuth2(OAuth2Config{
		ConnectorID: "jira",
		AuthURL:     "https://auth.atlassian.com/authorize",
		TokenURL:    server.URL,
		ClientID:    "client-123",
	})
	if err != nil {
		t.Fatalf("new oauth2: %v", err)
	}

	complete, err := exchange.CompleteAuth(context.Background(), core.CompleteAuthRequest{Code: "code_456"})
	if err != nil {
		t.Fatalf("complete auth: %v", err)
	}
	if complete.Credential.AccessToken != "atk_form" {
		t.Fatalf("unexpected access token %q", complete.Credential.AccessToken)
	}
	if complete.Credential.Refreshable {
		t.Fatalf("expected non-refreshable credential without refresh token")
	}
}

func TestOAuth2_RevokeTokenPostsToken(t *testing.T) {
	var captured url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse revoke form: %v", err)
		}
		captured = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exchange, err := NewOAuth2(OAuth2Config{
		ConnectorID: "salesforce",
		AuthURL:     "https://login.salesforce.com/services/oauth2/authorize",
		TokenURL:    "https://login.salesforce.com/services/oauth2/token",
		RevokeURL:   server.URL,
		ClientID:    "client-123",
	})
	if err != nil {
		t.Fatalf("new oauth2: %v", err)
	}

	if err := exchange.RevokeToken(context.Background(), "atk_1"); err != nil {
		t.Fatalf("revoke token: %v", err)
	}
	if captured.Get("token") != "atk_1" {
		t.Fatalf("expected token form value, got %#v", captured)
	}
}

func TestNewOAuth2_RequiresEndpointsAndClientID(t *testing.T) {
	_, err := NewOAuth2(OAuth2Config{})
	if err == nil {
		t.Fatalf("expected validation error")
	}

	_, err = NewOAuth2(OAuth2Config{ConnectorID: "jira", AuthURL: "https://example.com/auth"})
	if err == nil {
		t.Fatalf("expected missing token url validation error")
	}

	_, err = NewOAuth2(OAuth2Config{
		ConnectorID: "jira",
		AuthURL:     "https://example.com/auth",
		TokenURL:    "https://example.com/token",
	})
	if err == nil {
		t.Fatalf("expected missing client id validation error")
	}
}
