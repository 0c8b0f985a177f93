package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-connectors/core"
)

type staticAdapter struct {
	kind string
}

func (a staticAdapter) Kind() string { return a.kind }

func (a staticAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{StatusCode: 200}, nil
}

func TestRegistry_RegisterGetAndListDeterministic(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(staticAdapter{kind: "stream"}); err != nil {
		t.Fatalf("register stream adapter: %v", err)
	}
	if err := registry.Register(staticAdapter{kind: "rest"}); err != nil {
		t.Fatalf("register rest adapter: %v", err)
	}

	if _, ok := registry.Get("rest"); !ok {
		t.Fatalf("expected rest adapter to be registered")
	}

	listed := registry.List()
	if len(listed) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(listed))
	}
	if listed[0].Kind() != "rest" || listed[1].Kind() != "stream" {
		t.Fatalf("expected deterministic sorted order, got %q and %q", listed[0].Kind(), listed[1].Kind())
	}

	if err := registry.Register(staticAdapter{kind: "rest"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRegistry_RegisterFactoryBuildsCustomAdapter(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterFactory("custom", func(config map[string]any) (core.TransportAdapter, error) {
		kind := strings.TrimSpace(fmt.Sprint(config["kind"]))
		if kind == "" {
			kind = "custom"
		}
		return staticAdapter{kind: kind}, nil
	}); err != nil {
		t.Fatalf("register adapter factory: %v", err)
	}

	adapter, err := registry.Build("custom", map[string]any{"kind": "webhook"})
	if err != nil {
		t.Fatalf("build adapter from factory: %v", err)
	}
	if adapter.Kind() != "webhook" {
		t.Fatalf("expected webhook adapter from factory, got %q", adapter.Kind())
	}
}

func TestRegistry_DefaultShipsRESTAndRejectingKinds(t *testing.T) {
	registry := NewDefaultRegistry()

	if _, ok := registry.Get(KindREST); !ok {
		t.Fatalf("expected rest adapter in default registry")
	}

	adapter, err := registry.Build(KindStream, nil)
	if err != nil {
		t.Fatalf("build stream placeholder: %v", err)
	}
	if _, err := adapter.Do(context.Background(), core.TransportRequest{}); err == nil {
		t.Fatalf("expected stream placeholder to reject calls")
	}
}

func TestRESTAdapter_DoSendsMethodHeadersAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST method, got %s", r.Method)
		}
		if got := r.URL.Query().Get("jql"); got != "project=OPS" {
			t.Fatalf("expected query value, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Fatalf("expected auth header, got %q", got)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if string(body) != "payload" {
			t.Fatalf("expected request body payload")
		}
		w.Header().Set("X-Request-Id", "req-9")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	result, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: "POST",
		URL:    server.URL,
		Query:  map[string]string{"jql": "project=OPS"},
		Headers: map[string]string{
			"Authorization": "Bearer token-1",
		},
		Body:    []byte("payload"),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("perform rest request: %v", err)
	}
	if result.StatusCode != http.StatusAccepted {
		t.Fatalf("expected accepted status, got %d", result.StatusCode)
	}
	if string(result.Body) != "done" {
		t.Fatalf("unexpected response body: %q", string(result.Body))
	}
	if result.Headers["X-Request-Id"] != "req-9" {
		t.Fatalf("expected response header")
	}
}

func TestResponseMeta_ParsesRetryAfterSeconds(t *testing.T) {
	meta := ResponseMeta(core.TransportResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": "12"},
	})
	if meta.RetryAfter == nil {
		t.Fatalf("expected parsed retry-after")
	}
	if *meta.RetryAfter != 12*time.Second {
		t.Fatalf("expected 12s retry-after, got %s", *meta.RetryAfter)
	}
}

func TestResponseMeta_ParsesRetryAfterHTTPDate(t *testing.T) {
	at := time.Now().Add(30 * time.Second).UTC()
	meta := ResponseMeta(core.TransportResponse{
		StatusCode: http.StatusServiceUnavailable,
		Headers:    map[string]string{"retry-after": at.Format(http.TimeFormat)},
	})
	if meta.RetryAfter == nil {
		t.Fatalf("expected parsed retry-after")
	}
	if *meta.RetryAfter <= 0 || *meta.RetryAfter > 31*time.Second {
		t.Fatalf("expected retry-after close to 30s, got %s", *meta.RetryAfter)
	}
}

func TestResponseMeta_IgnoresMissingRetryAfter(t *testing.T) {
	meta := ResponseMeta(core.TransportResponse{StatusCode: http.StatusOK})
	if meta.RetryAfter != nil {
		t.Fatalf("expected nil retry-after without header")
	}
}
