package redact

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

var (
	authHeaderRe  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyValueRe = regexp.MustCompile(`(?i)(api[_-]?key(?:s)?\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	tokenishKeyRe = regexp.MustCompile(`(?i)(key|token|secret)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	longTokenRe   = regexp.MustCompile(`[A-Za-z0-9_\-]{24,}`)
)

// String redacts known secret patterns from free-form strings.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	out = authHeaderRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyValueRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = tokenishKeyRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, "[REDACTED]") {
			return m
		}
		sub := tokenishKeyRe.FindStringSubmatch(m)
		if len(sub) < 3 {
			return m
		}
		return sub[1] + "=[REDACTED]"
	})
	return out
}

// Preview redacts personal data from a payload preview before it reaches a
// log line or sink event.
func Preview(s string) string {
	if s == "" {
		return s
	}
	out := emailRe.ReplaceAllString(s, "[REDACTED_EMAIL]")
	out = longTokenRe.ReplaceAllString(out, "[REDACTED_TOKEN]")
	return out
}

// Logf logs with all formatted arguments passed through String.
func Logf(format string, args ...any) {
	log.Print(String(fmt.Sprintf(format, args...)))
}
