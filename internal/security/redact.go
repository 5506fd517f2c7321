// Package security masks provider credentials before they reach logs,
// terminal output or HTTP responses.
package security

import (
	"regexp"
	"strings"
)

var (
	keyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-(?:ant-|proj-)?[A-Za-z0-9_\-]{16,}`), // OpenAI, Anthropic, DashScope, Moonshot
		regexp.MustCompile(`AIza[A-Za-z0-9_\-]{30,}`),               // Gemini
	}

	// api_key=..., "authorization": "Bearer ..."
	assignmentPattern = regexp.MustCompile(`(?i)((?:api[_-]?key|secret|access[_-]?token|bearer)["']?\s*[=:\s]\s*["']?)([A-Za-z0-9_\-\.]{12,})`)
)

// MaskCredential masks a credential value for display, keeping the first and
// last four characters of long values.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 12 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks anything in s that looks like a provider API key.
func Redact(s string) string {
	s = assignmentPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := assignmentPattern.FindStringSubmatch(match)
		return parts[1] + MaskCredential(parts[2])
	})
	for _, p := range keyPatterns {
		s = p.ReplaceAllStringFunc(s, MaskCredential)
	}
	return s
}

// ContainsCredential reports whether s holds an unmasked API key.
func ContainsCredential(s string) bool {
	for _, p := range keyPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// RedactedError wraps err so its message is redacted while errors.Is and
// errors.As still see the original chain.
func RedactedError(err error) error {
	if err == nil {
		return nil
	}
	return redactedError{err: err}
}

type redactedError struct {
	err error
}

func (e redactedError) Error() string { return Redact(e.err.Error()) }
func (e redactedError) Unwrap() error { return e.err }
