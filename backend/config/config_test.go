package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_NAME", "survey_test")
	t.Setenv("TREE_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "survey_test", cfg.DBName)
	assert.Equal(t, 90*time.Second, cfg.TreeCacheTTL)
	assert.Equal(t, "centro-sim-qa", cfg.DefaultInstrumentKey)
	assert.Contains(t, cfg.DSN(), "dbname=survey_test")
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("TREE_CACHE_TTL", "soon")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "TREE_CACHE_TTL")
}

func TestAdminEmails(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", " Jefa@Example.com , ,ops@example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"Jefa@Example.com", "ops@example.com"}, cfg.AdminEmails)
	assert.True(t, cfg.IsAdminEmail("jefa@example.com"))
	assert.False(t, cfg.IsAdminEmail("otro@example.com"))
}
