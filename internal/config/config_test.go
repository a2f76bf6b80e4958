package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
	assert.Equal(t, 4, cfg.Schedule.Parallelism)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLKeepsDefaultsForMissingSections(t *testing.T) {
	cfg, err := FromYAML([]byte("log:\n  level: debug\n  pretty: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, "UTC", cfg.Schedule.Timezone)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"level":       "log:\n  level: loud\n",
		"cron":        "schedule:\n  cron: \"every day\"\n",
		"parallelism": "schedule:\n  parallelism: -1\n",
		"base path":   "server:\n  base_path: v0\n",
		"yaml":        "log: [",
		"webhook url": "webhooks:\n  - url: ftp://x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("workspaces:\n  default: acme\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Workspaces.Default)
}

func TestWebhookActive(t *testing.T) {
	cfg, err := FromYAML([]byte("webhooks:\n  - url: http://127.0.0.1:9/hook\n  - url: https://example.com\n    enabled: false\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 2)
	assert.True(t, cfg.Webhooks[0].Active())
	assert.False(t, cfg.Webhooks[1].Active())
}
