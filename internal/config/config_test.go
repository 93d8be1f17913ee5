package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/teamclean/pkg/core/sweeps"
	"github.com/jakechorley/teamclean/pkg/core/visibility"
)

const testPIIKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestValidate_ValidConfig(t *testing.T) {
	hour := 9
	cfg := &Config{
		DatabaseURL: "postgres://localhost/teamclean",
		PIIKey:      testPIIKey,
		Visibility:  VisibilityConfig{ReferenceHour: &hour, WindowHours: 24},
		Requests:    RequestsConfig{TTL: 12 * time.Hour},
		Sweeps: SweepsConfig{
			ReminderRRule:       "FREQ=DAILY;BYHOUR=8",
			ReminderHorizonDays: 4,
		},
		Gmail: &GmailConfig{CredentialsFile: "sa.json", Sender: "ops@example.com"},
	}

	err := Validate(cfg)
	assert.NoError(t, err)
}

func TestValidate_MinimalConfig(t *testing.T) {
	cfg := &Config{
		DatabaseURL: "postgres://localhost/teamclean",
		PIIKey:      testPIIKey,
	}

	err := Validate(cfg)
	assert.NoError(t, err)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	cfg := &Config{
		PIIKey: testPIIKey,
		// Missing DatabaseURL
	}

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidate_BadPIIKey(t *testing.T) {
	for _, key := range []string{"abc", "zz0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"} {
		cfg := &Config{DatabaseURL: "postgres://localhost/teamclean", PIIKey: key}
		err := Validate(cfg)
		assert.Error(t, err, key)
	}
}

func TestValidate_ReferenceHourOutOfRange(t *testing.T) {
	hour := 24
	cfg := &Config{
		DatabaseURL: "postgres://localhost/teamclean",
		PIIKey:      testPIIKey,
		Visibility:  VisibilityConfig{ReferenceHour: &hour},
	}

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidate_InvalidRRule(t *testing.T) {
	cfg := &Config{
		DatabaseURL: "postgres://localhost/teamclean",
		PIIKey:      testPIIKey,
		Sweeps:      SweepsConfig{ReminderRRule: "INVALID_RRULE_SYNTAX"},
	}

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rrule")
}

func TestValidate_GmailNeedsSender(t *testing.T) {
	cfg := &Config{
		DatabaseURL: "postgres://localhost/teamclean",
		PIIKey:      testPIIKey,
		Gmail:       &GmailConfig{CredentialsFile: "sa.json"},
	}

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromPath_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "test_config.yaml", `
databaseURL: "postgres://localhost/teamclean"
piiKey: "`+testPIIKey+`"
server:
  addr: ":9090"
visibility:
  referenceHour: 8
  windowHours: 36
requests:
  ttl: 24h
  offerTTL: 12h
sweeps:
  backupTimeoutInterval: 30m
  reminderRRule: "FREQ=DAILY;BYHOUR=8"
  reminderHorizonDays: 3
  clientResponseWindow: 6h
gmail:
  credentialsFile: "sa.json"
  sender: "ops@example.com"
tracing:
  enabled: true
`)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/teamclean", cfg.DatabaseURL)
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, 24*time.Hour, cfg.Requests.TTL)
	assert.Equal(t, 12*time.Hour, cfg.ServiceOptions().OfferTTL)
	assert.Equal(t, 6*time.Hour, cfg.SweepOptions().ClientResponseWindow)
	assert.Equal(t, 3, cfg.SweepOptions().ReminderHorizonDays)
	assert.Equal(t, "FREQ=DAILY;BYHOUR=8", cfg.Sweeps.ReminderRRule)
	require.NotNil(t, cfg.Gmail)
	assert.Equal(t, "ops@example.com", cfg.Gmail.Sender)
	assert.True(t, cfg.Tracing.Enabled)

	policy := cfg.VisibilityPolicy()
	assert.Equal(t, 8, policy.ReferenceHour)
	assert.Equal(t, 36*time.Hour, policy.Window)

	assert.Equal(t, 30*time.Minute, cfg.SweepInterval(sweeps.SweepBackupTimeout))
	assert.Equal(t, sweeps.DefaultResponseExpirationInterval, cfg.SweepInterval(sweeps.SweepResponseExpiration))
}

func TestLoadFromPath_MinimalConfigUsesDefaults(t *testing.T) {
	configPath := writeConfig(t, "minimal_config.yaml", `
databaseURL: "postgres://localhost/teamclean"
piiKey: "`+testPIIKey+`"
`)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Nil(t, cfg.Gmail)
	assert.Equal(t, DefaultServerAddr, cfg.Addr())
	assert.Equal(t, visibility.NewPolicy(), cfg.VisibilityPolicy())
	assert.Equal(t, sweeps.DefaultReminderInterval, cfg.SweepInterval(sweeps.SweepUnassignedReminder))
}

func TestLoadFromPath_ReferenceHourZeroIsKept(t *testing.T) {
	configPath := writeConfig(t, "midnight.yaml", `
databaseURL: "postgres://localhost/teamclean"
piiKey: "`+testPIIKey+`"
visibility:
  referenceHour: 0
`)

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.VisibilityPolicy().ReferenceHour)
}

func TestLoadFromPath_InvalidRRule(t *testing.T) {
	configPath := writeConfig(t, "invalid_rrule.yaml", `
databaseURL: "postgres://localhost/teamclean"
piiKey: "`+testPIIKey+`"
sweeps:
  reminderRRule: "INVALID_RRULE_SYNTAX"
`)

	_, err := LoadFromPath(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rrule")
}

func TestLoadFromPath_MissingRequiredField(t *testing.T) {
	configPath := writeConfig(t, "invalid_config.yaml", `
# Missing databaseURL
piiKey: "`+testPIIKey+`"
`)

	_, err := LoadFromPath(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid_yaml.yaml", `
databaseURL: "postgres://localhost/teamclean"
  invalid indentation
piiKey: "abc"
`)

	_, err := LoadFromPath(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFromPath_FileNotFound(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadWithEnv_FindsFileInCurrentDir(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	body := "databaseURL: \"postgres://localhost/teamclean\"\npiiKey: \"" + testPIIKey + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "teamclean_config.test.yaml"), []byte(body), 0644))

	cfg, err := LoadWithEnv("test")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/teamclean", cfg.DatabaseURL)
}

func TestLoadWithEnv_RequiresEnv(t *testing.T) {
	_, err := LoadWithEnv("")
	assert.Error(t, err)
}
