package core

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	PageLimitMin     = 1
	PageLimitMax     = 200
	PageLimitDefault = 50
)

type PageRequest struct {
	Cursor string
	Limit  int
}

// Page is one slice of a collection listing. NextCursor is nil when the
// collection is exhausted; an empty Items with a nil NextCursor is the
// normal shape for an empty collection.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// NormalizePageRequest clamps Limit into [PageLimitMin, PageLimitMax] and
// substitutes fallback (or PageLimitDefault) when the limit is unset.
func NormalizePageRequest(req PageRequest, fallback int) PageRequest {
	if fallback < PageLimitMin || fallback > PageLimitMax {
		fallback = PageLimitDefault
	}
	limit := req.Limit
	if limit == 0 {
		limit = fallback
	}
	if limit < PageLimitMin {
		limit = PageLimitMin
	}
	if limit > PageLimitMax {
		limit = PageLimitMax
	}
	return PageRequest{
		Cursor: strings.TrimSpace(req.Cursor),
		Limit:  limit,
	}
}

// EncodeCursor wraps a zero-based offset into an opaque cursor token.
// Callers must not parse cursors; the encoding is free to change.
func EncodeCursor(offset int) string {
	if offset < 0 {
		offset = 0
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func DecodeCursor(cursor string) (int, error) {
	trimmed := strings.TrimSpace(cursor)
	if trimmed == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("core: invalid cursor %q", cursor)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("core: invalid cursor %q", cursor)
	}
	return offset, nil
}

// PageFrom materializes one page of an already-loaded slice using offset
// cursors. Connectors backed by providers with native pagination build
// their pages directly instead.
func PageFrom[T any](all []T, req PageRequest) (Page[T], error) {
	normalized := NormalizePageRequest(req, PageLimitDefault)
	offset, err := DecodeCursor(normalized.Cursor)
	if err != nil {
		return Page[T]{}, err
	}
	if offset >= len(all) {
		return Page[T]{Items: []T{}}, nil
	}
	end := offset + normalized.Limit
	if end > len(all) {
		end = len(all)
	}
	page := Page[T]{Items: append([]T{}, all[offset:end]...)}
	if end < len(all) {
		next := EncodeCursor(end)
		page.NextCursor = &next
	}
	return page, nil
}
