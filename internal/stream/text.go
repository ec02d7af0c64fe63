package stream

import (
	"regexp"
	"unicode/utf8"
)

// ansiPattern matches CSI sequences, OSC sequences (BEL or ST
// terminated), and single-character escapes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)|\x1b[@-_]`)

// StripANSI removes terminal control sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Truncate cuts s to at most max bytes without splitting a multi-byte
// code point, so the result is always valid UTF-8.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
