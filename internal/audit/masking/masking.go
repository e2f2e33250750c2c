package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = []string{"token", "secret", "password", "authorization"}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive copies metadata, masking string values stored under keys that
// look like credentials. The result is never nil.
func MaskSensitive(input map[string]any) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if str, ok := value.(string); ok && isSensitive(trimmedKey) {
			masked[trimmedKey] = MaskSecret(str)
			continue
		}
		masked[trimmedKey] = value
	}
	return masked
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, candidate := range sensitiveKeys {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}
