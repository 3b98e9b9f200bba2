package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|github[_-]?token|access[_-]?token)\b\s*[:=]\s*[^\s"'&]+`)

	// Query string credentials in urls echoed by http clients.
	queryKeyRe = regexp.MustCompile(`(?i)([?&](?:key|api_key|access_token|token)=)[^&\s"']+`)

	// GitHub personal access and app tokens.
	githubTokenRe = regexp.MustCompile(`\b(?:ghp|gho|ghu|ghs|ghr|github_pat)_[A-Za-z0-9_]{20,}`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = queryKeyRe.ReplaceAllString(out, "${1}<redacted>")
	out = githubTokenRe.ReplaceAllString(out, "<redacted_token>")
	return strings.TrimSpace(out)
}
