package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "only whitespace", in: " \t\n ", want: ""},
		{name: "collapse runs", in: "a  b\t\tc\n\nd", want: "a b c d"},
		{name: "trim ends", in: "  hello world  ", want: "hello world"},
		{name: "non-breaking space", in: "a\u00a0\u00a0b", want: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "normalize must be idempotent")
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("The Equipment Plan\n\nis   late.")
	b := Fingerprint("  the equipment plan is late. ")

	require.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint("the equipment plan is early."))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(""))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "single", in: "No terminal punctuation", want: []string{"No terminal punctuation"}},
		{
			name: "mixed terminals",
			in:   "First one. Second one! Third one? Fourth",
			want: []string{"First one.", "Second one!", "Third one?", "Fourth"},
		},
		{
			name: "decimal is not a boundary",
			in:   "Costs rose 4.5 percent. Then fell.",
			want: []string{"Costs rose 4.5 percent.", "Then fell."},
		},
		{
			name: "newline boundary",
			in:   "Line one.\n\nLine two.",
			want: []string{"Line one.", "Line two."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.in))
		})
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("The MoD's co-operation on 12 big UK tenders")
	assert.Equal(t, []string{"the", "mod", "co-operation", "big", "tenders"}, got)
}

func TestFoldAndContains(t *testing.T) {
	folded := Fold("Defence Procurement REFORM")
	assert.True(t, ContainsFold(folded, "defence procurement"))
	assert.True(t, ContainsFold(folded, "REFORM"))
	assert.False(t, ContainsFold(folded, "tender"))
	assert.False(t, ContainsFold(folded, ""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 3))
	assert.Equal(t, "éé", Truncate("ééé", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, 90, Len(Truncate(strings.Repeat("ü", 200), 90)))
}
