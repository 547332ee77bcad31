package logging

import (
	"regexp"
	"strings"
)

// Redacted replaces secrets in log output and report environment listings.
const Redacted = "[REDACTED]"

// Sanitizer redacts credentials from log messages and report content.
type Sanitizer struct {
	patterns  []*regexp.Regexp
	keyMarker []string
	redacted  string
}

// NewSanitizer creates a sanitizer with the default value patterns and
// sensitive key markers.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns:  compilePatterns(valuePatterns),
		keyMarker: append([]string(nil), sensitiveKeyMarkers...),
		redacted:  Redacted,
	}
}

// valuePatterns match credentials by shape, wherever they appear.
var valuePatterns = []string{
	`sk-[A-Za-z0-9_-]{20,}`,          // API keys with the sk- prefix
	`ghp_[A-Za-z0-9]{36}`,            // GitHub tokens
	`gh[ousr]_[A-Za-z0-9]{36}`,
	`AKIA[0-9A-Z]{16}`,               // AWS access key ids
	`AIza[a-zA-Z0-9_-]{35}`,          // Google API keys
	`xox[baprs]-[0-9a-zA-Z-]{10,}`,   // Slack
	`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
	`(?i)(api[_-]?key|secret|token)["'\s:=]+[a-zA-Z0-9_/+=-]{20,}`,
	`(?i)password["'\s:=]+[^\s"']{8,}`,
	`(?i)://[^/\s:@]+:[^/\s@]+@`, // credentials in URLs
}

// sensitiveKeyMarkers flag environment variable names whose values are
// redacted whole.
var sensitiveKeyMarkers = []string{
	"TOKEN", "SECRET", "PASSWORD", "PASSWD", "CREDENTIAL", "PRIVATE", "APIKEY", "API_KEY", "AUTH",
}

func compilePatterns(src []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(src))
	for _, p := range src {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts credentials found in input.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// SensitiveKey reports whether the name of a variable marks its value as secret.
func (s *Sanitizer) SensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, m := range s.keyMarker {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// SanitizeEnv returns the value of an environment variable safe for a report.
func (s *Sanitizer) SanitizeEnv(key, value string) string {
	if value != "" && s.SensitiveKey(key) {
		return s.redacted
	}
	return s.Sanitize(value)
}

// SanitizeMap redacts string values in a map, recursing into nested maps.
func (s *Sanitizer) SanitizeMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			result[k] = s.SanitizeEnv(k, val)
		case map[string]any:
			result[k] = s.SanitizeMap(val)
		default:
			result[k] = v
		}
	}
	return result
}

// AddPattern adds a value pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}

// AddSensitiveKey adds a key marker, matched case-insensitively.
func (s *Sanitizer) AddSensitiveKey(marker string) {
	s.keyMarker = append(s.keyMarker, strings.ToUpper(marker))
}
