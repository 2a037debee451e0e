package core

import "strings"

const RedactedValue = "[REDACTED]"

var (
	sensitiveKeyParts = []string{"password", "secret", "token", "authorization", "api_key", "apikey", "credential", "verifier"}

	// keptKeys match a sensitive part but carry no secret and are needed to
	// trace a request.
	keptKeys = map[string]bool{
		"provider_id":   true,
		"connection_id": true,
		"operation":     true,
		"token_type":    true,
		"request_id":    true,
	}
)

// RedactSensitiveMap returns a copy of metadata with credential-like keys
// replaced by RedactedValue. Nested maps and slices are walked.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			out[key] = RedactedValue
		} else {
			out[key] = redactValue(value)
		}
	}
	return out
}

// RedactHeaders masks sensitive header values, e.g. Authorization.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if isSensitiveKey(key) {
			value = RedactedValue
		}
		out[key] = value
	}
	return out
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case map[string]string:
		return RedactHeaders(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	}
	return value
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || keptKeys[key] {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
