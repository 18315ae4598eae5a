package outbox

import (
	"regexp"
	"strings"
)

// maxErrorLength matches the width of outbox_events.last_error.
const maxErrorLength = 255

const (
	errorTruncatedSuffix = "... (truncated)"
	redactedValue        = "[REDACTED]"
)

type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
}

var sensitivePatterns = []sensitivePattern{
	{
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:\s/]+):([^@\s]+)@`),
		replacement: `$1:` + redactedValue + `@`,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*`),
		replacement: "Bearer " + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(authorization\s*:\s*basic\s+)[a-z0-9+/=]+`),
		replacement: `$1` + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`\beyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\b`),
		replacement: redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(api[-_ ]?key|access[-_ ]?token|password|secret)\s*[:=]\s*([^\s,;]+)`),
		replacement: `$1=` + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)([?&](?:password|pass|pwd|token|api[_-]?key|access[_-]?token)=)([^&\s]+)`),
		replacement: `$1` + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}\b`),
		replacement: redactedValue,
	},
}

// sanitizeError redacts credentials from err and bounds it to
// maxErrorLength runes so it can be stored as lastError.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.TrimSpace(err.Error())
	for _, p := range sensitivePatterns {
		msg = p.pattern.ReplaceAllString(msg, p.replacement)
	}
	return truncate(msg, maxErrorLength, errorTruncatedSuffix)
}

func truncate(msg string, maxRunes int, suffix string) string {
	runes := []rune(msg)
	if len(runes) <= maxRunes {
		return msg
	}

	suffixRunes := []rune(suffix)
	if maxRunes <= len(suffixRunes) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(suffixRunes)]) + suffix
}
