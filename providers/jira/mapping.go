package jira

import (
	"encoding/json"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

// mapProject folds a Jira project into the unified container shape. The
// project key doubles as the container id because issue JQL is keyed on it;
// the numeric id only backs it up when the key is missing.
func mapProject(project jiraProject) core.Container {
	id := strings.TrimSpace(project.Key)
	if id == "" {
		id = strings.TrimSpace(project.ID)
	}
	meta := map[string]any{}
	if project.ProjectTypeKey != "" {
		meta["projectTypeKey"] = project.ProjectTypeKey
	}
	if project.Lead.DisplayName != "" {
		meta["lead"] = project.Lead.DisplayName
	}
	return core.Container{
		ID:    id,
		Label: project.Name,
		Kind:  "project",
		Meta:  meta,
	}
}

func mapIssue(issue jiraIssue) core.Item {
	id := strings.TrimSpace(issue.ID)
	if id == "" {
		id = strings.TrimSpace(issue.Key)
	}
	containerID := strings.TrimSpace(issue.Fields.Project.Key)
	if containerID == "" {
		containerID = strings.TrimSpace(issue.Fields.Project.ID)
	}
	meta := map[string]any{}
	if issue.Key != "" {
		meta["key"] = issue.Key
	}
	if issue.Fields.Status.Name != "" {
		meta["status"] = issue.Fields.Status.Name
	}
	if issue.Fields.Assignee.DisplayName != "" {
		meta["assignee"] = issue.Fields.Assignee.DisplayName
	}
	if issue.Fields.Reporter.DisplayName != "" {
		meta["reporter"] = issue.Fields.Reporter.DisplayName
	}
	if issue.Fields.Created != "" {
		meta["created"] = issue.Fields.Created
	}
	if issue.Fields.Updated != "" {
		meta["updated"] = issue.Fields.Updated
	}
	return core.Item{
		ID:          id,
		Name:        issue.Fields.Summary,
		ContainerID: containerID,
		Meta:        meta,
	}
}

func mapComment(comment jiraComment) core.Comment {
	return core.Comment{
		ID:      comment.ID,
		Author:  comment.Author.DisplayName,
		Text:    commentText(comment.Body),
		Created: comment.Created,
		Updated: comment.Updated,
	}
}

// commentText flattens a comment body to plain text. Jira Cloud v3 returns
// Atlassian Document Format, a nested node tree whose leaves carry "text";
// older sites and reduced representations return a bare string.
func commentText(body json.RawMessage) string {
	if len(body) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(body, &plain); err == nil {
		return plain
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	parts := []string{}
	collectDocText(doc, &parts)
	return strings.Join(parts, " ")
}

func collectDocText(node any, parts *[]string) {
	switch typed := node.(type) {
	case map[string]any:
		if text, ok := typed["text"].(string); ok && strings.TrimSpace(text) != "" {
			*parts = append(*parts, strings.TrimSpace(text))
		}
		if content, ok := typed["content"].([]any); ok {
			for _, child := range content {
				collectDocText(child, parts)
			}
		}
	case []any:
		for _, child := range typed {
			collectDocText(child, parts)
		}
	}
}
