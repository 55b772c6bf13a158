package stars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		match   bool
	}{
		{"a*", "alpha", true},
		{"a*", "beta", false},
		{"*.example.com", "host.example.com", true},
		{"*.example.com", "example.com", false},
		{"literal", "literal", true},
		{"literal", "literally", false},
		{"a.b", "a.b", true},
		{"a.b", "aXb", false}, // '.' must be escaped, not treated as regexp wildcard
		{"*", "anything at all", true},
	}
	for _, tc := range tests {
		p, err := CompilePattern(tc.pattern)
		require.NoError(t, err)
		assert.Equal(t, tc.match, p.Match(tc.input), "pattern %q vs %q", tc.pattern, tc.input)
	}
}

func TestPatternRoundTrip(t *testing.T) {
	p, err := CompilePattern("no-wildcard-here")
	require.NoError(t, err)
	assert.True(t, p.Match("no-wildcard-here"))
	assert.Equal(t, "no-wildcard-here", p.String())
}

func TestPatternSetMatchAny(t *testing.T) {
	var set PatternSet
	assert.False(t, set.MatchAny("anything"))

	a, _ := CompilePattern("a*")
	b, _ := CompilePattern("b*")
	set = PatternSet{a, b}
	assert.True(t, set.MatchAny("apple"))
	assert.True(t, set.MatchAny("banana"))
	assert.False(t, set.MatchAny("cherry"))
}

func TestLoadPatternFileMissing(t *testing.T) {
	set, err := loadPatternFile(filepath.Join(t.TempDir(), "does-not-exist.cfg"))
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestLoadPatternFileCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allow.cfg")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\na*\n\n# another\nb*\n"), 0600))

	set, err := loadPatternFile(path)
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.True(t, set.MatchAny("apple"))
	assert.True(t, set.MatchAny("banana"))
}
