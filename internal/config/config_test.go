package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prodexhq/prodex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	_ = os.Unsetenv("PRODEX_HOST")
	_ = os.Unsetenv("PRODEX_PORT")
	_ = os.Unsetenv("PRODEX_CONFIG_FILE")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, 1536, cfg.Provider.Dimension)
	assert.Equal(t, 60*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 5, cfg.Queue.MaxReads)
	assert.Equal(t, time.Hour, cfg.Sync.StalenessTTL)
	assert.Equal(t, 10, cfg.Sync.AttachMaxPolls)
	assert.Equal(t, 30, cfg.Sync.RunMaxPolls)
	assert.Equal(t, "development", cfg.Security.Mode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRODEX_HOST", "0.0.0.0")
	t.Setenv("PRODEX_PORT", "9090")
	t.Setenv("PRODEX_EMBEDDING_DIMENSION", "768")
	t.Setenv("PRODEX_SYNC_TTL", "15m")
	t.Setenv("PRODEX_SECURITY_MODE", "production")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 768, cfg.Provider.Dimension)
	assert.Equal(t, 15*time.Minute, cfg.Sync.StalenessTTL)
	assert.Equal(t, "production", cfg.Security.Mode)
}

func TestLoad_UnparseableEnvFallsBack(t *testing.T) {
	t.Setenv("PRODEX_PORT", "not-a-port")
	t.Setenv("PRODEX_SYNC_TTL", "eventually")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Sync.StalenessTTL)
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("PRODEX_PORT", "9090")

	path := filepath.Join(t.TempDir(), "prodex.yaml")
	yaml := "server:\n  port: 8081\nqueue:\n  max_reads: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// Keys present in the file win; untouched keys keep env/default values.
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Queue.MaxReads)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:    "unsupported engine",
			mutate:  func(cfg *config.Config) { cfg.Storage.Engine = "dynamo" },
			wantErr: "unsupported storage engine",
		},
		{
			name: "postgres without dsn",
			mutate: func(cfg *config.Config) {
				cfg.Storage.Engine = "postgres"
				cfg.Storage.PostgresDSN = ""
			},
			wantErr: "postgres engine requires",
		},
		{
			name:    "non-positive dimension",
			mutate:  func(cfg *config.Config) { cfg.Provider.Dimension = 0 },
			wantErr: "dimension must be positive",
		},
		{
			name:    "max reads below one",
			mutate:  func(cfg *config.Config) { cfg.Queue.MaxReads = 0 },
			wantErr: "max reads must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
