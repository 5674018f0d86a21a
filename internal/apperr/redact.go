package apperr

import "regexp"

// Redaction patterns, applied in order. Provider API keys are matched by
// their well-known prefixes; bearer tokens and email addresses by shape.
var redactions = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`), "[REDACTED_TOKEN]"},
	{regexp.MustCompile(`\b(?:sk|rk|pk)[-_][A-Za-z0-9._\-]{16,}\b`), "[REDACTED_KEY]"},
	{regexp.MustCompile(`\bkey-[A-Za-z0-9]{16,}\b`), "[REDACTED_KEY]"},
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[REDACTED_EMAIL]"},
	// Absolute filesystem paths; anchored to a boundary so URL paths inside
	// http(s) strings are left alone.
	{regexp.MustCompile(`(^|[\s"'(])(?:/[A-Za-z0-9._\-]+){2,}`), "$1[REDACTED_PATH]"},
}

// Redact replaces file paths, email addresses, bearer tokens, and
// provider-key-looking substrings before a message is surfaced or logged.
func Redact(msg string) string {
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.replacement)
	}
	return msg
}
