package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("DATABASE_URL", "postgres://localhost/reminders_test")
	t.Setenv("RECIPIENT_CHAT_ID", "123456")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5, cfg.MaxActiveReminders)
	assert.False(t, cfg.ReplaceOnCreate)
	assert.Equal(t, 5, cfg.SnoozeIntervalMinutes)
	assert.Equal(t, "0 * * * *", cfg.CronSpecRecurringCheck)
	assert.Empty(t, cfg.PushListenAddr)
}

func TestLoadSingleMessageVariant(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_ACTIVE_REMINDERS", "1")
	t.Setenv("REPLACE_ON_CREATE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxActiveReminders)
	assert.True(t, cfg.ReplaceOnCreate)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_ACTIVE_REMINDERS", "0")
	_, err := Load()
	assert.Error(t, err)

	setRequired(t)
	t.Setenv("MAX_ACTIVE_REMINDERS", "3")
	t.Setenv("REPLACE_ON_CREATE", "sometimes")
	_, err = Load()
	assert.Error(t, err)
}
