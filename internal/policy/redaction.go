package policy

import "regexp"

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-+/=]+`)
	jwtPattern    = regexp.MustCompile(`\beyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+`)
	keyPattern    = regexp.MustCompile(`(?i)\b(api[_-]?key|session[_-]?token|token|secret)(["']?\s*[:=]\s*["']?)[^\s"',}]+`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// RedactSecrets masks credentials and contact details that upstream error bodies
// sometimes echo back.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	changed = changed || next != out
	out = next

	next = jwtPattern.ReplaceAllString(out, "[REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	// Keep the field name so the message still says what was wrong.
	next = keyPattern.ReplaceAllString(out, "${1}${2}[REDACTED]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	return out, changed
}

// DisplayMessage returns msg unchanged unless redact is set.
func DisplayMessage(msg string, redact bool) string {
	if !redact {
		return msg
	}
	out, _ := RedactSecrets(msg)
	return out
}
