// Package redact strips sensitive values from diagnostics before they are
// logged.
//
// Index containers receive the environment's secret key on their command
// line, so the escaped command recorded for a failed run must be scrubbed.
// Redaction is best-effort and relies on callers passing the right values.
package redact

import "strings"

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// EnvAssignments returns a copy of args with the value of every KEY=VALUE
// element whose key looks secret replaced by [REDACTED].
func EnvAssignments(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		k, _, ok := strings.Cut(a, "=")
		if ok && IsSensitiveKey(k) {
			out[i] = k + "=" + placeholder
			continue
		}
		out[i] = a
	}
	return out
}

// IsSensitiveKey reports whether the key name suggests it holds a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "credential", "apikey", "api_key"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
