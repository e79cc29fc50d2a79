package blobcast

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testRulesYAML = `
rules:
  - when: event.contentType.startsWith("image/")
    skip: true
  - when: event.contentLength > 1048576
    skip: true
  - when: "true"
`

func TestParseRuleSet(t *testing.T) {
	env, err := NewCELEnv()
	require.NoError(t, err)
	rs, err := ParseRuleSet([]byte(testRulesYAML), env)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 3)
	require.True(t, rs.Rules[0].Skip)
	require.False(t, rs.Rules[2].Skip)
}

func TestRuleSetMatchFirstWins(t *testing.T) {
	env, err := NewCELEnv()
	require.NoError(t, err)
	rs, err := ParseRuleSet([]byte(testRulesYAML), env)
	require.NoError(t, err)

	// matches rule 0 even though rule 2 would also match
	rule, err := rs.Match(&RuleTarget{ContentType: "image/png", ContentLength: 100})
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.True(t, rule.Skip)
	require.Equal(t, `event.contentType.startsWith("image/")`, rule.When.Raw())

	rule, err = rs.Match(&RuleTarget{ContentType: "text/plain", ContentLength: 2 << 20})
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, `event.contentLength > 1048576`, rule.When.Raw())

	// catch-all
	rule, err = rs.Match(&RuleTarget{ContentType: "text/plain", ContentLength: 10})
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.False(t, rule.Skip)
}

func TestRuleSetBindErrors(t *testing.T) {
	env, err := NewCELEnv()
	require.NoError(t, err)

	_, err = ParseRuleSet([]byte(`rules: []`), env)
	require.ErrorContains(t, err, "at least one rule is required")

	_, err = ParseRuleSet([]byte("rules:\n  - skip: true\n"), env)
	require.ErrorContains(t, err, "when is required")

	_, err = ParseRuleSet([]byte("rules:\n  - when: event.noSuchField == 1\n"), env)
	require.Error(t, err)
}

func TestLoadRuleSetFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRulesYAML), 0644))

	env, err := NewCELEnv()
	require.NoError(t, err)
	rs, err := LoadRuleSetFile(path, env)
	require.NoError(t, err)
	require.Len(t, rs.Rules, 3)

	_, err = LoadRuleSetFile(filepath.Join(tmpDir, "missing.yaml"), env)
	require.Error(t, err)
}
