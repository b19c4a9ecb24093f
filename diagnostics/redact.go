package diagnostics

import "regexp"

var (
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	secretRe = regexp.MustCompile(`(?i)(api[_-]?key|token|passcode|password)["']?\s*[:=]\s*['"]?[\w\-.]{4,}['"]?`)
)

// Redact removes emails and credential-looking key/value pairs from s.
// Everything persisted or published by the recorder goes through here.
func Redact(s string) string {
	s = emailRe.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = secretRe.ReplaceAllString(s, "$1: [REDACTED]")
	return s
}

// RedactValue walks maps, slices and strings, redacting every string leaf.
func RedactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return Redact(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = RedactValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = RedactValue(val)
		}
		return out
	default:
		return v
	}
}
