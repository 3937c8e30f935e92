package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrganisationDefaults(t *testing.T) {
	org, err := LoadOrganisation("")
	require.NoError(t, err)

	assert.Equal(t, []string{"AG", "UG", "PG"}, org.GroupPrefixes)
	assert.Contains(t, org.DecisionTitleKeywords, "beschluss")
	assert.Contains(t, org.ModerationKeywords, "moderation")
	assert.Equal(t, "Beispiel", org.DecisionExampleTitle)
}

func TestLoadOrganisationOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	content := `
group_prefixes: ["WG"]
decision_example_title: "Sample"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	org, err := LoadOrganisation(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"WG"}, org.GroupPrefixes)
	assert.Equal(t, "Sample", org.DecisionExampleTitle)
	// untouched fields keep defaults
	assert.Contains(t, org.MemberKeywords, "mitglieder")
}

func TestLoadOrganisationMissingFile(t *testing.T) {
	_, err := LoadOrganisation("/nonexistent/org.yaml")
	assert.Error(t, err)
}
