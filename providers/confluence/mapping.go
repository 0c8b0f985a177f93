package confluence

import (
	"encoding/json"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

func mapSpace(space confluenceSpace) core.Container {
	id := strings.TrimSpace(space.Key)
	if id == "" {
		id = strings.TrimSpace(space.ID)
	}
	meta := map[string]any{}
	if space.Type != "" {
		meta["type"] = space.Type
	}
	if space.Status != "" {
		meta["status"] = space.Status
	}
	return core.Container{
		ID:    id,
		Label: space.Name,
		Kind:  "space",
		Meta:  meta,
	}
}

// mapPage prefers the space key the caller scoped the listing to; pages
// fetched without a scope fall back to the numeric space id the API
// returns.
func mapPage(page confluencePage, spaceKey string) core.Item {
	containerID := strings.TrimSpace(spaceKey)
	if containerID == "" {
		containerID = strings.TrimSpace(page.SpaceID)
	}
	meta := map[string]any{}
	if page.Status != "" {
		meta["status"] = page.Status
	}
	if page.ParentID != "" {
		meta["parentId"] = page.ParentID
	}
	if page.CreatedAt != "" {
		meta["createdAt"] = page.CreatedAt
	}
	if page.Version.Number > 0 {
		meta["version"] = page.Version.Number
	}
	return core.Item{
		ID:          page.ID,
		Name:        page.Title,
		ContainerID: containerID,
		Meta:        meta,
	}
}

func mapComment(comment confluenceComment) core.Comment {
	author := strings.TrimSpace(comment.CreatedBy.DisplayName)
	if author == "" {
		author = strings.TrimSpace(comment.CreatedBy.Name)
	}
	return core.Comment{
		ID:      comment.ID,
		Author:  author,
		Text:    commentBodyText(comment.Body),
		Created: comment.CreatedAt,
		Updated: comment.UpdatedAt,
	}
}

// commentBodyText accepts either a plain string body or the storage
// representation object the v2 API returns.
func commentBodyText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	wrapped := struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	}{}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return ""
	}
	return strings.TrimSpace(wrapped.Storage.Value)
}
