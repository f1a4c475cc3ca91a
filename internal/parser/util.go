package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// parseNumber converts "1,234,567" to 1234567. Anything unparsable is 0.
func parseNumber(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// extractMatch returns the given capture group of the first match, or "".
func extractMatch(text string, re *regexp.Regexp, group int) string {
	m := re.FindStringSubmatch(text)
	if m == nil || group >= len(m) {
		return ""
	}
	return m[group]
}
