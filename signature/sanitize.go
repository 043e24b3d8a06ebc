package signature

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Precompiled masking regexes for performance
var (
	passwordMaskRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	apiKeyMaskRegex   = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	tokenMaskRegex    = regexp.MustCompile(`(?i)(token|bearer)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
)

// Preview produces a log-safe snippet of inspected content: truncated to
// max characters, newlines flattened, credential-looking substrings
// masked.
func Preview(input string, max int) string {
	truncated := len(input) > max
	if truncated {
		input = input[:truncateOnRune(input, max)]
	}

	input = strings.ReplaceAll(input, "\n", " ")
	input = passwordMaskRegex.ReplaceAllString(input, "[REDACTED_PASSWORD]")
	input = apiKeyMaskRegex.ReplaceAllString(input, "[REDACTED_KEY]")
	input = tokenMaskRegex.ReplaceAllString(input, "[REDACTED_TOKEN]")

	if truncated {
		return input + "..."
	}
	return input
}

// truncateOnRune returns the largest cut point <= max that does not
// split a multi-byte rune.
func truncateOnRune(s string, max int) int {
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return max
}
