package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
)

// Providers disagree on how they report rate budgets. Atlassian sends
// x-ratelimit-* with the reset as an RFC 3339 stamp, GitHub-style APIs use
// epoch seconds, others send seconds-until-reset, and Salesforce reports
// consumption through Sforce-Limit-Info. readBudget normalizes all of them
// into one snapshot.
type budgetSnapshot struct {
	Limit        int
	HasLimit     bool
	Remaining    int
	HasRemaining bool
	ResetAt      time.Time
	HasResetAt   bool
}

func (b budgetSnapshot) observed() bool {
	return b.HasLimit || b.HasRemaining || b.HasResetAt
}

func readBudget(headers map[string]string, now time.Time) budgetSnapshot {
	budget := budgetSnapshot{}
	if limit, ok := parseHeaderInt(headers, "x-ratelimit-limit"); ok {
		budget.Limit = limit
		budget.HasLimit = true
	}
	if remaining, ok := parseHeaderInt(headers, "x-ratelimit-remaining"); ok {
		budget.Remaining = remaining
		budget.HasRemaining = true
	}
	if resetAt, ok := parseResetAt(headerValue(headers, "x-ratelimit-reset"), now); ok {
		budget.ResetAt = resetAt
		budget.HasResetAt = true
	}
	if budget.HasLimit && budget.HasRemaining {
		return budget
	}
	if used, limit, ok := parseSforceUsage(headerValue(headers, "sforce-limit-info")); ok {
		budget.Limit = limit
		budget.HasLimit = true
		budget.Remaining = limit - used
		if budget.Remaining < 0 {
			budget.Remaining = 0
		}
		budget.HasRemaining = true
	}
	return budget
}

// epochCutoff splits epoch stamps from delta seconds in a reset header; no
// provider window is a billion seconds long.
const epochCutoff = int64(1_000_000_000)

// parseResetAt accepts the three reset formats seen in the wild: an RFC 3339
// stamp, epoch seconds, or seconds until the window resets.
func parseResetAt(value string, now time.Time) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if stamp, err := time.Parse(time.RFC3339, value); err == nil {
		return stamp.UTC(), true
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds <= 0 {
		return time.Time{}, false
	}
	if seconds >= epochCutoff {
		return time.Unix(seconds, 0).UTC(), true
	}
	return now.Add(time.Duration(seconds) * time.Second), true
}

// parseSforceUsage reads Salesforce's consumption report, a comma separated
// list like "api-usage=18/5000".
func parseSforceUsage(value string) (int, int, bool) {
	if value == "" {
		return 0, 0, false
	}
	for _, field := range strings.Split(value, ",") {
		name, usage, found := strings.Cut(strings.TrimSpace(field), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "api-usage") {
			continue
		}
		usedRaw, limitRaw, found := strings.Cut(usage, "/")
		if !found {
			return 0, 0, false
		}
		used, err := strconv.Atoi(strings.TrimSpace(usedRaw))
		if err != nil || used < 0 {
			return 0, 0, false
		}
		limit, err := strconv.Atoi(strings.TrimSpace(limitRaw))
		if err != nil || limit <= 0 {
			return 0, 0, false
		}
		return used, limit, true
	}
	return 0, 0, false
}

func parseRetryAfter(res core.ProviderResponseMeta, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	raw := headerValue(res.Headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := httpDate(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now), true
		}
	}
	return 0, false
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("ratelimit: empty date")
	}
	if parsed, err := time.Parse(time.RFC1123, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123Z, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date")
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
