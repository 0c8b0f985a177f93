package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap returns a deep copy of metadata with secret-bearing
// keys replaced by RedactedValue. Applied to everything that becomes
// wire-visible error detail or log fields.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"api-key",
		"access_key",
		"refresh",
		"credential",
		"signature",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "connector_id",
		"tenant_id",
		"connection_id",
		"job_id",
		"external_id",
		"idempotency_key",
		"correlation_id",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}

// MaskValue keeps the last four characters of values long enough to stay
// non-identifying, so operators can still line up a masked key against what
// they hold. Short values are fully masked.
func MaskValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) > 8 {
		return "****" + trimmed[len(trimmed)-4:]
	}
	return "***"
}

// MaskSettings applies MaskValue to every settings key the descriptor marks
// secret. Used when connection settings are echoed back to callers.
func MaskSettings(settings map[string]any, fields []ConfigField) map[string]any {
	if len(settings) == 0 {
		return map[string]any{}
	}
	secret := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field.Secret {
			secret[strings.ToLower(strings.TrimSpace(field.Name))] = struct{}{}
		}
	}
	masked := make(map[string]any, len(settings))
	for key, value := range settings {
		if _, ok := secret[strings.ToLower(strings.TrimSpace(key))]; ok {
			if text, isText := value.(string); isText {
				masked[key] = MaskValue(text)
				continue
			}
			masked[key] = RedactedValue
			continue
		}
		if shouldRedactKey(key) {
			masked[key] = RedactedValue
			continue
		}
		masked[key] = value
	}
	return masked
}
