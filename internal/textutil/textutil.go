// Package textutil holds small text transforms used by the scheduler:
// ANSI stripping for persisted log chunks, and the queue-truncation rule
// used for review diffs and follow-up text.
package textutil

import "regexp"

// ansiPattern matches CSI/OSC escape sequences emitted by terminal-oriented
// agent CLIs. Stripping runs before execution log chunks are persisted so
// stored text is always plain.
var ansiPattern = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[a-zA-Z]|\][^\x07]*\x07|[@-Z\\-_])`)

// StripANSI removes terminal escape sequences. It is idempotent (running
// it twice yields the same result as once), never lengthens the input, and
// preserves plain text under concatenation: StripANSI(a+b) == StripANSI(a)
// + StripANSI(b) whenever neither a nor b ends/begins mid-escape.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// TruncateWithPrefix implements the queue-truncation contract: when the
// combined length of prefix+content already fits within cap, content is
// returned unchanged. Otherwise the result is the most recent
// cap-len(prefix) runes of content: prefix only reserves that room and is
// not itself part of the result. When prefix alone fills cap, the result
// is empty.
func TruncateWithPrefix(prefix, content string, capLen int) string {
	prefixRunes := []rune(prefix)
	contentRunes := []rune(content)

	if len(prefixRunes)+len(contentRunes) <= capLen {
		return content
	}

	budget := capLen - len(prefixRunes)
	if budget <= 0 {
		return ""
	}
	if len(contentRunes) <= budget {
		return content
	}
	return string(contentRunes[len(contentRunes)-budget:])
}
