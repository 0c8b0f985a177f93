package jira

import (
	"encoding/json"
	"testing"
)

func TestMapProjectPrefersKeyAsID(t *testing.T) {
	container := mapProject(jiraProject{ID: "10000", Key: "ENG", Name: "Engineering"})
	if container.ID != "ENG" {
		t.Fatalf("expected project key as container id, got %q", container.ID)
	}

	container = mapProject(jiraProject{ID: "10001", Name: "Legacy"})
	if container.ID != "10001" {
		t.Fatalf("expected numeric id fallback, got %q", container.ID)
	}
	if _, ok := container.Meta["lead"]; ok {
		t.Fatalf("expected no lead meta without a lead, got %+v", container.Meta)
	}
}

func TestMapIssueFallsBackToProjectID(t *testing.T) {
	item := mapIssue(jiraIssue{
		ID:  "20001",
		Key: "ENG-1",
		Fields: jiraIssueFields{
			Summary: "Fix login",
			Project: jiraProjectRef{ID: "10000"},
		},
	})
	if item.ContainerID != "10000" {
		t.Fatalf("expected project id fallback for container, got %q", item.ContainerID)
	}
	if item.Meta["key"] != "ENG-1" {
		t.Fatalf("expected issue key in meta, got %+v", item.Meta)
	}
	if _, ok := item.Meta["assignee"]; ok {
		t.Fatalf("expected unassigned issue to omit assignee meta")
	}
}

func TestCommentTextHandlesBodyVariants(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "plain string body",
			body: `"looks good"`,
			want: "looks good",
		},
		{
			name: "document body",
			body: `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"first"},{"type":"text","text":"second"}]}]}`,
			want: "first second",
		},
		{
			name: "nested blocks",
			body: `{"content":[{"content":[{"content":[{"text":"deep"}]}]},{"content":[{"text":"wide"}]}]}`,
			want: "deep wide",
		},
		{
			name: "empty body",
			body: `null`,
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := commentText(json.RawMessage(tc.body))
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
