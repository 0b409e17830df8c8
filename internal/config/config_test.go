package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const validYAML = `
base_url: "https://hub.example/"
queue_poll_url: "https://hub.example/queue"
routing:
  dso:
    "6427020100007": "org-7"
  ddq:
    "6427020200004": "org-4"
ledger:
  type: "sqlite"
  dsn: "test.db"
generator:
  dso_list: ["6427020100007"]
  mga_list: ["6427020100000000"]
  dealer_list: ["6427020200004"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	require.Equal(t, "https://hub.example/", cfg.BaseURL)
	require.Equal(t, "org-7", cfg.Routing.DSO["6427020100007"])
	require.Equal(t, "sqlite", cfg.Ledger.Type)
	require.True(t, cfg.Ledger.AutoMigrate)

	// Defaults survive a partial file.
	require.Equal(t, 10, cfg.Dispatch.BlockSize)
	require.Equal(t, 30*time.Second, cfg.PhaseCooldown())
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	require.Equal(t, 10000, cfg.Generator.CatalogRowLimit)
	require.Equal(t, "xml", cfg.Paths.Outbox)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GRIDFORGE_DISPATCH__BLOCK_SIZE", "25")
	t.Setenv("GRIDFORGE_LEDGER__DSN", "env.db")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Dispatch.BlockSize)
	require.Equal(t, "env.db", cfg.Ledger.DSN)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing trailing slash",
			yaml:    validYAML + "\nbase_url: \"https://hub.example\"\n",
			wantErr: "trailing slash",
		},
		{
			name: "no routing table",
			yaml: `
base_url: "https://hub.example/"
ledger:
  type: "sqlite"
  dsn: "test.db"
`,
			wantErr: "routing.dso",
		},
		{
			name:    "bad ledger type",
			yaml:    validYAML + "\nledger:\n  type: \"mysql\"\n  dsn: \"x\"\n",
			wantErr: "unsupported ledger.type",
		},
		{
			name:    "bad cooldown",
			yaml:    validYAML + "\ndispatch:\n  phase_cooldown: \"soon\"\n",
			wantErr: "phase_cooldown",
		},
		{
			name:    "short dso prefix",
			yaml:    validYAML + "\ngenerator:\n  dso_list: [\"123\"]\n",
			wantErr: "too short",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.ErrorContains(t, err, "failed to load config file")
}
