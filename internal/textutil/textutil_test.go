package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripANSIRemovesEscapeSequences(t *testing.T) {
	input := "\x1b[31mhello\x1b[0m world"
	require.Equal(t, "hello world", StripANSI(input))
}

func TestStripANSIIsIdempotent(t *testing.T) {
	input := "\x1b[1;32mok\x1b[0m"
	once := StripANSI(input)
	twice := StripANSI(once)
	require.Equal(t, once, twice)
}

func TestStripANSINeverLengthens(t *testing.T) {
	for _, s := range []string{"plain text", "\x1b[2Knothing", "", "\x1b]0;title\x07body"} {
		require.LessOrEqual(t, len(StripANSI(s)), len(s))
	}
}

func TestStripANSIPreservesPlainTextUnderConcatenation(t *testing.T) {
	a := "abc"
	b := "def"
	require.Equal(t, StripANSI(a)+StripANSI(b), StripANSI(a+b))
}

func TestTruncateWithPrefixReturnsOriginalWhenWithinCap(t *testing.T) {
	require.Equal(t, "short", TruncateWithPrefix("prefix: ", "short", 100))
}

func TestTruncateWithPrefixKeepsMostRecentTail(t *testing.T) {
	content := "0123456789"
	out := TruncateWithPrefix("p:", content, 6)
	require.LessOrEqual(t, len(out), 6)
	require.Equal(t, content[len(content)-4:], out)
}
