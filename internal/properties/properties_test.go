package properties

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		key   string
		value string
	}{
		{"plain", "css/app.css", "css/app.css", "css/app.css"},
		{"separators", "a=b:c", `a\=b\:c`, `a\=b\:c`},
		{"comment chars", "#x!y", `\#x\!y`, `\#x\!y`},
		{"spaces", " a b", `\ a\ b`, `\ a b`},
		{"controls", "a\tb\nc\rd\fe", `a\tb\nc\rd\fe`, `a\tb\nc\rd\fe`},
		{"backslash", `a\b`, `a\\b`, `a\\b`},
		{"non-ascii", "grüße", `gr\u00FC\u00DFe`, `gr\u00FC\u00DFe`},
		{"surrogates", "x😀", `x\uD83D\uDE00`, `x\uD83D\uDE00`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, EscapeKey(tt.in))
			assert.Equal(t, tt.value, EscapeValue(tt.in))
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	pairs := []Pair{
		{Key: "css/app.css", Value: "css/app-3f2a9c.css:0123abcd"},
		{Key: "weird key=with:stuff", Value: " leading space"},
		{Key: "unicode/ünï.js", Value: "ünï-1.js:ff"},
		{Key: "multi\nline", Value: "tab\there"},
		{Key: `back\slash`, Value: `trailing\`},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "Mon Oct 19 12:00:00 UTC 2026", pairs))
	assert.True(t, strings.HasPrefix(buf.String(), "#Mon Oct 19 12:00:00 UTC 2026\n"))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, pairs, got)
}

func TestReadSyntax(t *testing.T) {
	input := "# comment\n" +
		"! other comment\n" +
		"\n" +
		"   \t\n" +
		"a=1\n" +
		"b : 2\n" +
		"c 3\n" +
		"  d=4\r\n" +
		"e=five \\\n" +
		"    continued\r" +
		"f\n" +
		"g=\\u0041\\u00e9\n" +
		"h=even\\\\\n" +
		"i=x"

	got, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Pair{
		{"a", "1"},
		{"b", "2"},
		{"c", "3"},
		{"d", "4"},
		{"e", "five continued"},
		{"f", ""},
		{"g", "Aé"},
		{"h", `even\`},
		{"i", "x"},
	}, got)
}

func TestReadCommentDoesNotContinue(t *testing.T) {
	got, err := Read(strings.NewReader("# comment \\\na=1\n"))
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"a", "1"}}, got)
}

func TestReadMalformedEscape(t *testing.T) {
	_, err := Read(strings.NewReader("a=1\nb=\\u00zz\n"))
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "line 2")

	_, err = Read(strings.NewReader("b=\\u00"))
	require.ErrorIs(t, err, ErrMalformed)
}
