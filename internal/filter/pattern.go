package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a compiled glob matched against a whole '/'-separated
// relative path.
//
//	*    any run of characters not containing '/'
//	**   any run of characters including '/'
//	**/  zero or more leading path segments
//
// Every other character, '.' and '?' included, matches itself.
type Pattern struct {
	re       *regexp.Regexp
	original string
}

// Compile translates glob into an anchored regular expression in a
// single left-to-right pass.
func Compile(glob string) (*Pattern, error) {
	if glob == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	// (?s) lets ** cross newlines in names, as * already does.
	re, err := regexp.Compile("(?s)^" + globToRegex(ToSlash(glob)) + "$")
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", glob, err)
	}
	return &Pattern{re: re, original: glob}, nil
}

// Match reports whether relPath matches the pattern in full.
func (p *Pattern) Match(relPath string) bool {
	return p.re.MatchString(ToSlash(relPath))
}

func (p *Pattern) String() string { return p.original }

func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); {
		if glob[i] != '*' {
			// Copy the literal run up to the next star in one go.
			j := i
			for j < len(glob) && glob[j] != '*' {
				j++
			}
			b.WriteString(regexp.QuoteMeta(glob[i:j]))
			i = j
			continue
		}
		if i+1 < len(glob) && glob[i+1] == '*' {
			if i+2 < len(glob) && glob[i+2] == '/' {
				b.WriteString("(?:.*/)?")
				i += 3
			} else {
				b.WriteString(".*")
				i += 2
			}
			continue
		}
		b.WriteString("[^/]*")
		i++
	}
	return b.String()
}

// ToSlash normalizes both native and Windows separators to '/'.
func ToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
