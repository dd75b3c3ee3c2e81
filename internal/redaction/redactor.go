// Package redaction masks credentials in text destined for logs, errors, and reports.
package redaction

import (
	"regexp"
	"sort"
	"strings"
)

// PlaceholderConstant replaces every credential occurrence.
const PlaceholderConstant = "<CREDENTIALS>"

// authenticatedURLPattern matches scheme://userinfo@ where userinfo may hold a user, a token, or both.
var authenticatedURLPattern = regexp.MustCompile(`([A-Za-z][A-Za-z0-9+.\-]*://)([^/\s@]+)@`)

// Redactor masks a fixed set of known secrets and any credential segment embedded in URLs.
type Redactor struct {
	secrets []string
}

// NewRedactor constructs a Redactor for the provided secrets. Blank secrets are ignored.
func NewRedactor(secrets ...string) Redactor {
	return Redactor{secrets: normalizeSecrets(secrets)}
}

// With returns a Redactor that also masks the additional secrets.
func (redactor Redactor) With(secrets ...string) Redactor {
	combined := make([]string, 0, len(redactor.secrets)+len(secrets))
	combined = append(combined, redactor.secrets...)
	combined = append(combined, secrets...)
	return Redactor{secrets: normalizeSecrets(combined)}
}

// Secrets reports how many distinct secrets the Redactor masks.
func (redactor Redactor) Secrets() int {
	return len(redactor.secrets)
}

// Redact returns a sanitized copy of text.
func (redactor Redactor) Redact(text string) string {
	return redactNormalized(text, redactor.secrets)
}

// RedactAll sanitizes every element of values into a new slice.
func (redactor Redactor) RedactAll(values []string) []string {
	if values == nil {
		return nil
	}
	redacted := make([]string, len(values))
	for index, value := range values {
		redacted[index] = redactor.Redact(value)
	}
	return redacted
}

// Redact masks authenticated URL segments first, then every exact secret occurrence.
// Unmatched input passes through unchanged.
func Redact(text string, secrets []string) string {
	return redactNormalized(text, normalizeSecrets(secrets))
}

func redactNormalized(text string, secrets []string) string {
	if len(text) == 0 {
		return text
	}
	sanitized := authenticatedURLPattern.ReplaceAllString(text, "${1}"+PlaceholderConstant+"@")
	for _, secret := range secrets {
		if len(secret) == 0 {
			continue
		}
		sanitized = strings.ReplaceAll(sanitized, secret, PlaceholderConstant)
	}
	return sanitized
}

// normalizeSecrets deduplicates and orders secrets longest first so that a secret
// containing another is replaced as a whole.
func normalizeSecrets(secrets []string) []string {
	seen := make(map[string]struct{}, len(secrets))
	normalized := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		trimmed := strings.TrimSpace(secret)
		if len(trimmed) == 0 || trimmed == PlaceholderConstant {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.SliceStable(normalized, func(left int, right int) bool {
		return len(normalized[left]) > len(normalized[right])
	})
	return normalized
}
