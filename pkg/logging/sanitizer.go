package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxOutputLogLength is the maximum length of raw model output to log
	MaxOutputLogLength = 300
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Anthropic and OpenAI style secret keys
	secretKeyPattern = regexp.MustCompile(`sk-(ant-)?[A-Za-z0-9_-]{10,}`)

	// Pattern to match potential API keys passed as parameters or headers
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|x-api-key|apikey|key)[=:]\s*[A-Za-z0-9-_]{20,}`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain credentials.
// Provider SDK errors sometimes echo request headers or URLs.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeOutput flattens and truncates raw model output for a single log field.
func SanitizeOutput(output string) string {
	if output == "" {
		return ""
	}
	flattened := strings.Join(strings.Fields(output), " ")
	flattened = secretKeyPattern.ReplaceAllString(flattened, RedactedText)
	return TruncateString(flattened, MaxOutputLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
