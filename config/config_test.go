package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TARGET_USERS", "alice@example.com, bob@example.com,alice@example.com")
	t.Setenv("SHEET_ID", "sheet-123")
	t.Setenv("CALENDAR_WEBHOOK_URL", "https://hooks.example.com/calendar")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", `{"type":"service_account"}`)
}

func TestLoadReportsAllMissingVariables(t *testing.T) {
	t.Setenv("TARGET_USERS", "")
	t.Setenv("SHEET_ID", "")
	t.Setenv("CALENDAR_WEBHOOK_URL", "")
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TARGET_USERS")
	assert.Contains(t, err.Error(), "SHEET_ID")
	assert.Contains(t, err.Error(), "CALENDAR_WEBHOOK_URL")
	assert.Contains(t, err.Error(), "GOOGLE_CREDENTIALS_FILE")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, cfg.TargetUsers)
	assert.Equal(t, "OOO_Events!A:E", cfg.SheetRange)
	assert.Equal(t, "OOO", cfg.SheetName)
	assert.Equal(t, time.Hour, cfg.MinLease)
	assert.Equal(t, 7*24*time.Hour, cfg.WatchTTL)
	assert.Equal(t, 3, cfg.Threshold)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "@hourly", cfg.SweepCron)
	assert.Empty(t, cfg.UserLabels)
}

func TestLoadInvalidTimezone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIMEZONE", "Not/AZone")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMEZONE")
}

func TestLoadInvalidThreshold(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PTO_THRESHOLD", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PTO_THRESHOLD")
}

func TestUserLabelsFileOverridesInlineJSON(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("USER_LABELS_JSON", `{"alice@example.com":"ALICE (EMEA)","bob@example.com":"BOB"}`)

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alice@example.com: ALICE (APAC)\n"), 0o600))
	t.Setenv("USER_LABELS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ALICE (APAC)", cfg.UserLabels["alice@example.com"])
	assert.Equal(t, "BOB", cfg.UserLabels["bob@example.com"])
}

func TestUserLabelsBadJSON(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("USER_LABELS_JSON", "{not json")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "USER_LABELS_JSON")
}
