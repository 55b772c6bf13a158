package stars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0600))
}

func TestLoadConfigHappyPath(t *testing.T) {
	libDir := t.TempDir()
	keyDir := t.TempDir()

	writeFile(t, libDir, "allow.cfg", "*\n")
	writeFile(t, libDir, "command_allow.cfg", "")
	writeFile(t, libDir, "command_deny.cfg", "danger*\n")
	writeFile(t, libDir, "aliases.cfg", "x a\n")
	writeFile(t, libDir, "reconnectable_from.cfg", "*\n")
	writeFile(t, libDir, "reconnectable_name.cfg", "a\n")
	writeFile(t, libDir, "shutdown_allow.cfg", "admin\n")
	writeFile(t, keyDir, "server.key", "sekrit")

	cfg, err := LoadConfig(libDir, keyDir, 6057)
	require.NoError(t, err)

	assert.True(t, cfg.HostAllowed("anyhost", "1.2.3.4", "a"))
	assert.False(t, cfg.CommandAllowed("dangerzone"))
	assert.True(t, cfg.CommandAllowed("hello"))
	assert.Equal(t, "a", cfg.ResolveAlias("x"))
	assert.Equal(t, "a", cfg.ResolveAlias("a"))
	assert.True(t, cfg.Reconnectable("anyhost", "1.2.3.4", "a"))
	assert.False(t, cfg.Reconnectable("anyhost", "1.2.3.4", "b"))
	assert.True(t, cfg.ShutdownAllowed("admin"))
	assert.False(t, cfg.ShutdownAllowed("a"))
	assert.Equal(t, []byte("sekrit"), cfg.Secret())
}

func TestLoadConfigMissingSecretIsFatal(t *testing.T) {
	libDir := t.TempDir()
	keyDir := t.TempDir()
	_, err := LoadConfig(libDir, keyDir, 6057)
	require.Error(t, err)
}

func TestLoadConfigPerNodeAllowIsAdditive(t *testing.T) {
	libDir := t.TempDir()
	keyDir := t.TempDir()
	writeFile(t, libDir, "allow.cfg", "*\n")
	writeFile(t, libDir, "a.allow", "10.0.0.*\n")
	writeFile(t, keyDir, "server.key", "sekrit")

	cfg, err := LoadConfig(libDir, keyDir, 6057)
	require.NoError(t, err)

	assert.True(t, cfg.HostAllowed("host", "10.0.0.5", "a"))
	assert.False(t, cfg.HostAllowed("host", "10.1.0.5", "a"))
	// A node with no per-node allow file is governed by host_allow alone.
	assert.True(t, cfg.HostAllowed("host", "10.1.0.5", "b"))
}

func TestAliasTableRejectsConflicts(t *testing.T) {
	table := newAliasTable()
	require.NoError(t, table.add("x", "a"))
	assert.Error(t, table.add("x", "b"))     // x already maps elsewhere
	assert.Error(t, table.add("a", "y"))     // a is itself a real name
	assert.Error(t, table.add("y", "x"))     // x is itself used as an alias
	assert.Error(t, table.add("z", "z"))     // alias cannot equal its own real name
}
