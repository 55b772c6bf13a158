package stars

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/NebulousLabs/errors"
	"github.com/starslab/stars/modules"
)

// A Pattern is a wildcard string compiled to a fully-anchored matcher: '*'
// matches any run of characters, every other regexp metacharacter in the
// source string is escaped, and the compiled form is anchored at both ends.
// This is a hand-rolled compilation rather than a filepath-glob-style
// matcher because host and command patterns have no path segments and no
// special treatment of '/'; a single escape-and-anchor pass over regexp is
// simpler and has no surprising edge cases to document.
type Pattern struct {
	source   string
	compiled *regexp.Regexp
}

// CompilePattern compiles src into a Pattern. A literal containing no '*'
// matches only itself.
func CompilePattern(src string) (Pattern, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range src {
		if r == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return Pattern{}, errors.Extend(err, modules.ErrConfigLoad)
	}
	return Pattern{source: src, compiled: re}, nil
}

// Match reports whether s matches the pattern, full-string anchored.
func (p Pattern) Match(s string) bool {
	return p.compiled.MatchString(s)
}

// String returns the original, uncompiled pattern source.
func (p Pattern) String() string {
	return p.source
}

// PatternSet is an ordered list of compiled patterns, matched in the order
// they were loaded (irrelevant for matching semantics, but preserved for
// deterministic diagnostics).
type PatternSet []Pattern

// MatchAny reports whether s matches any pattern in the set. An empty set
// matches nothing.
func (ps PatternSet) MatchAny(s string) bool {
	for _, p := range ps {
		if p.Match(s) {
			return true
		}
	}
	return false
}

// loadPatternFile reads a newline-separated pattern file: blank lines and
// lines beginning with '#' are ignored, every other non-ignored line is
// compiled as one pattern. A missing file yields an empty set and no error;
// callers that require the file to exist check os.IsNotExist themselves.
func loadPatternFile(path string) (PatternSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Extend(err, modules.ErrConfigLoad)
	}
	defer f.Close()

	var set PatternSet
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := CompilePattern(line)
		if err != nil {
			return nil, errors.Extend(errors.New("in "+path+": "+line), err)
		}
		set = append(set, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Extend(err, modules.ErrConfigLoad)
	}
	return set, nil
}

// readNonEmptyLines reads path the same way loadPatternFile does (ignoring
// blank and '#' lines) but returns the raw lines instead of compiling them
// as patterns. Used for aliases.cfg, whose lines are "<alias> <realname>"
// pairs rather than bare patterns.
func readNonEmptyLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Extend(err, modules.ErrConfigLoad)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Extend(err, modules.ErrConfigLoad)
	}
	return lines, nil
}
