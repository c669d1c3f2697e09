package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternStarStopsAtSlash(t *testing.T) {
	p, err := Compile("*.txt")
	require.NoError(t, err)

	assert.True(t, p.Match("test.txt"))
	assert.False(t, p.Match("sub/test.txt"))
	assert.False(t, p.Match("test.txt.bak"))
	assert.False(t, p.Match("test.csv"))
}

func TestPatternDoubleStarLeadingSegments(t *testing.T) {
	p, err := Compile("**/*.txt")
	require.NoError(t, err)

	assert.True(t, p.Match("good.txt"))
	assert.True(t, p.Match("tmp/bad.txt"))
	assert.True(t, p.Match("a/b/c/deep.txt"))
	assert.False(t, p.Match("a/b/c/deep.csv"))
}

func TestPatternDoubleStarDirectory(t *testing.T) {
	p, err := Compile("**/tmp/**")
	require.NoError(t, err)

	assert.True(t, p.Match("tmp/bad.txt"))
	assert.True(t, p.Match("x/tmp/y/bad.txt"))
	assert.False(t, p.Match("good.txt"))
	assert.False(t, p.Match("tmpfile/x.txt"))
}

func TestPatternDoubleStarInsideSegment(t *testing.T) {
	p, err := Compile("reports**final.csv")
	require.NoError(t, err)

	assert.True(t, p.Match("reports/2024/final.csv"))
	assert.True(t, p.Match("reports-final.csv"))
}

func TestPatternLiteralCharacters(t *testing.T) {
	p, err := Compile("file?.(v1)+[x].txt")
	require.NoError(t, err)

	assert.True(t, p.Match("file?.(v1)+[x].txt"))
	assert.False(t, p.Match("file1.(v1)+[x].txt"))
	assert.False(t, p.Match("file?x(v1)+[x].txt"), "dot must be literal")
}

func TestPatternWholePath(t *testing.T) {
	p, err := Compile("sub/*.csv")
	require.NoError(t, err)

	assert.True(t, p.Match("sub/a.csv"))
	assert.False(t, p.Match("other/sub/a.csv"))
}

func TestPatternNormalizesSeparators(t *testing.T) {
	p, err := Compile("sub\\*.csv")
	require.NoError(t, err)

	assert.True(t, p.Match("sub/a.csv"))
	assert.True(t, p.Match("sub\\a.csv"))
}

func TestPatternEmpty(t *testing.T) {
	_, err := Compile("")
	assert.Error(t, err)
}

func TestGlobToRegex(t *testing.T) {
	tests := []struct {
		glob string
		want string
	}{
		{"*.txt", `[^/]*\.txt`},
		{"**/*.txt", `(?:.*/)?[^/]*\.txt`},
		{"**/tmp/**", `(?:.*/)?tmp/.*`},
		{"a.b", `a\.b`},
	}
	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			assert.Equal(t, tt.want, globToRegex(tt.glob))
		})
	}
}

func TestPatternNewlineInName(t *testing.T) {
	all, err := Compile("**")
	require.NoError(t, err)
	assert.True(t, all.Match("a\nb"))

	dir, err := Compile("**/tmp/**")
	require.NoError(t, err)
	assert.True(t, dir.Match("x/tmp/bad\nname.txt"))
	assert.True(t, dir.Match("line\nbreak/tmp/y"))

	star, err := Compile("*.txt")
	require.NoError(t, err)
	assert.True(t, star.Match("a\nb.txt"))
}
