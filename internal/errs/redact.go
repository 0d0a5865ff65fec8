package errs

import "strings"

// secretKeys lists context/field names whose values are scrubbed before
// they ever reach a log line or an error surfaced to a client. Grounded on
// the teacher's audiocore ffmpeg process redacting stderr via
// privacy.ScrubMessage before logging; here the scrubbing is keyed rather
// than pattern-based since context values arrive as structured key/value
// pairs, not free-form log lines.
var secretKeys = []string{
	"api_key",
	"apikey",
	"authorization",
	"token",
	"bearer",
	"secret",
	"password",
}

const redacted = "<redacted>"

// RedactValue replaces value with a placeholder when key looks like it
// names a secret. Non-matching keys and non-string values pass through
// unchanged.
func RedactValue(key string, value any) any {
	lower := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(lower, s) {
			return redacted
		}
	}
	return value
}

// RedactMessage scrubs bearer tokens and key=value-shaped secrets out of a
// free-form log line, such as ffmpeg/ffprobe stderr output or a provider
// HTTP error body that might echo back request headers.
func RedactMessage(msg string) string {
	fields := strings.Fields(msg)
	for i, f := range fields {
		lower := strings.ToLower(f)
		if lower == "bearer" && i+1 < len(fields) {
			fields[i+1] = redacted
			continue
		}
		for _, s := range secretKeys {
			if idx := strings.Index(lower, s+"="); idx >= 0 {
				fields[i] = f[:idx+len(s)+1] + redacted
				break
			}
		}
	}
	return strings.Join(fields, " ")
}
