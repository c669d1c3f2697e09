package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.rules")

	content := `# trade files only
+ **/*.csv
- **/tmp/**

noprefix.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"**/*.csv"}, rules.Includes)
	assert.Equal(t, []string{"**/tmp/**", "noprefix.csv"}, rules.Excludes)
}

func TestLoadRulesOnlyComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.rules")
	require.NoError(t, os.WriteFile(path, []byte("# nothing\n\n"), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Empty(t, rules.Includes)
	assert.Empty(t, rules.Excludes)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules("/nonexistent/feed.rules")
	assert.Error(t, err)
}
