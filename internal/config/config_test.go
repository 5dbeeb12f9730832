package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	require.Equal(t, 10, cfg.DefaultPool.Min)
	require.Equal(t, 50, cfg.DefaultPool.Max)
	require.Equal(t, 5, cfg.DefaultPool.Step)
	require.Equal(t, 60*time.Second, cfg.DefaultPool.ScaleUpInterval)
	require.Equal(t, 180*time.Second, cfg.DefaultPool.ScaleDownInterval)

	require.Equal(t, 20, cfg.LuminaPool.Min)
	require.Equal(t, 20, cfg.LuminaPool.Max)

	q, ok := cfg.Queue("prod")
	require.True(t, ok)
	require.Equal(t, 30, q.MaxPollingAttempts)
	require.Equal(t, 2*time.Second, q.PollingInterval)

	_, ok = cfg.Queue("nonexistent")
	require.False(t, ok)

	require.Equal(t, 30, cfg.TaskRetentionDays)
	require.Equal(t, "0 3 * * *", cfg.SweepCron)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GRIDGEN_MAKE_API_TOKEN", "secret-token")
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	require.Equal(t, "secret-token", cfg.MakeAPIToken)
}
