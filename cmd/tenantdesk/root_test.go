package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestSeedCommandLoadsDemoData(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TENANTDESK_DB_DRIVER", "sqlite")
	t.Setenv("TENANTDESK_DB_URL", filepath.Join(dir, "app.db"))
	t.Setenv("TENANTDESK_BCRYPT_COST", "4")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "missing.yml"), "seed"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "seeded 3 tenants, 4 users")

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "missing.yml"), "migrate"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "schema at version 1")
}
