package recorder

import (
	"errors"
	"regexp"
)

var errNilRecord = errors.New("nil record")

// secretPattern matches OpenAI-style and bearer-style keys that models
// sometimes echo back from their prompt.
var secretPattern = regexp.MustCompile(`\b(sk-[A-Za-z0-9_\-]{8,}|Bearer\s+[A-Za-z0-9._\-]{16,})`)

// RedactAPIKey shows only the first and last 4 characters of a key, with
// the middle replaced by asterisks. Keys shorter than 12 characters are
// fully masked.
//
// Example: "sk-abc123xyz789" -> "sk-a***z789"
func RedactAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) < 12 {
		return "****"
	}
	return apiKey[:4] + "***" + apiKey[len(apiKey)-4:]
}

// RedactSecrets masks every key-looking token in s.
func RedactSecrets(s string) string {
	return secretPattern.ReplaceAllStringFunc(s, RedactAPIKey)
}

// TruncateString truncates s to maxLen bytes, ending in "..." when there is
// room for it.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
