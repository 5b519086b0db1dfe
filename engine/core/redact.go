package core

import (
	"regexp"
	"strings"
)

// Precompiled patterns for the credential shapes the providers hand out.
var (
	bearerTokenRe = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-\._~\+\/]+=*`)
	kvSecretRe    = regexp.MustCompile(
		`(?i)(api[_-]?key|key|token|secret|password|access_token)\s*[:=]\s*["']?[^"'\s&]+["']?`,
	)
	groqKeyRe    = regexp.MustCompile(`\bgsk_[A-Za-z0-9]{16,}\b`)
	googleKeyRe  = regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{30,}\b`)
	genericKeyRe = regexp.MustCompile(`\b(sk-[A-Za-z0-9_\-]{16,}|key-[A-Za-z0-9_\-]{16,})\b`)
	connectionRe = regexp.MustCompile(`(?i)((redis|rediss|https?)://)[^@\s/]+@`)
)

// RedactString trims, truncates, and scrubs credentials from provider errors.
func RedactString(s string) string {
	const maxLen = 256
	s = strings.TrimSpace(s)
	s = groqKeyRe.ReplaceAllString(s, "[GROQ_KEY_REDACTED]")
	s = googleKeyRe.ReplaceAllString(s, "[GOOGLE_KEY_REDACTED]")
	s = connectionRe.ReplaceAllString(s, "$1[REDACTED]@")
	s = bearerTokenRe.ReplaceAllString(s, "$1[REDACTED]")
	s = kvSecretRe.ReplaceAllString(s, "$1=[REDACTED]")
	s = genericKeyRe.ReplaceAllString(s, "[REDACTED]")
	if len(s) > maxLen {
		s = s[:maxLen] + "…"
	}
	return s
}

// RedactError applies RedactString to an error, returning an empty string when nil.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return RedactString(err.Error())
}
