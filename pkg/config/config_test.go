package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulworks/maul/pkg/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Oracle.Model)
	assert.Equal(t, []string{"GOV-BYPASS-2024", "GOV-EMERGENCY-OVERRIDE"}, cfg.Governance.BypassCodes)
	assert.Equal(t, "default", cfg.Governance.ActivePolicy)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maul.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9999"
logging:
  level: DEBUG
oracle:
  endpoint: http://localhost:1234/v1/chat/completions
governance:
  bypass_codes: ["CODE-A"]
seed:
  agents:
    - id: solo
      name: Solo Agent
      capabilities: [browse]
      trusted_agents: ["*"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"CODE-A"}, cfg.Governance.BypassCodes)

	require.Len(t, cfg.Seed.Agents, 1)
	card := cfg.Seed.Agents[0].ToCard()
	assert.Equal(t, "solo", card.ID)
	assert.True(t, card.Capabilities.Contains("browse"))
	assert.Equal(t, []string{"*"}, cfg.Seed.Agents[0].TrustedAgents)
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maul.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAUL_ADDR", ":7777")
	t.Setenv("MAUL_LOG_LEVEL", "warn")
	t.Setenv("MAUL_ORACLE_MODEL", "gpt-4o")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "gpt-4o", cfg.Oracle.Model)
}

func TestSeedOrDefault(t *testing.T) {
	seed := SeedConfig{}.OrDefault()

	require.Len(t, seed.Agents, 4)
	assert.Equal(t, "planner", seed.Agents[0].ID)
	assert.NotEmpty(t, seed.Trust)
	require.Len(t, seed.Policies, 3)
	assert.Equal(t, "default", seed.Policies[0].ID)
	require.Len(t, seed.Listings, 4)

	// Strict policy restricts everything through the wildcard.
	strict := seed.Policies[2].ToPolicy()
	assert.True(t, strict.ActionsRequiringApproval.HasWildcard())

	// Seeded listings keep their advertised/actual divergence.
	listing := seed.Listings[0].ToListing()
	assert.True(t, listing.ActualCapabilities.Contains("file_access"))
	assert.False(t, listing.AdvertisedCapabilities.Contains("file_access"))
}

func TestSeedOrDefaultKeepsExplicitSections(t *testing.T) {
	seed := SeedConfig{
		Agents: []SeedAgent{{ID: "only"}},
		Trust:  []SeedEdge{{From: "only", To: domain.TrustWildcard}},
	}.OrDefault()

	require.Len(t, seed.Agents, 1)
	assert.Equal(t, "only", seed.Agents[0].ID)
	// Policies and listings still fall back to defaults.
	assert.Len(t, seed.Policies, 3)
	assert.Len(t, seed.Listings, 4)
}

func TestFileProviderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maul.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":8001\"\n"), 0o600))

	logger := slog.New(slog.DiscardHandler)
	provider, err := NewFileProvider(path, logger)
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	assert.Equal(t, ":8001", provider.Current().Server.Address)

	updates := provider.Subscribe()
	first := <-updates
	assert.Equal(t, ":8001", first.Server.Address)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":8002\"\n"), 0o600))

	select {
	case next := <-updates:
		assert.Equal(t, ":8002", next.Server.Address)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestFileProviderKeepsSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maul.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":8001\"\n"), 0o600))

	provider, err := NewFileProvider(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	// The bad write never replaces the last good snapshot.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, ":8001", provider.Current().Server.Address)
}
