package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("SHP_DATA_FILE", "/var/lib/planner/data.json")
	t.Setenv("SHP_PORT", "8099")
	t.Setenv("SHP_MAX_UPLOAD_FILE_BYTES", "1024")
	t.Setenv("SHP_BRIDGE_TIMEOUT", "5s")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("APP_TIMEZONE", "Europe/Berlin")

	cfg := Load()

	assert.Equal(t, "/var/lib/planner/data.json", cfg.Storage.DataFile)
	assert.Equal(t, "/var/lib/planner", cfg.Storage.DataDir())
	assert.Equal(t, "/var/lib/planner/areas.json", cfg.Storage.AreasFile())
	assert.Equal(t, ":8099", cfg.Addr())
	assert.Equal(t, int64(1024), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, int64(300<<20), cfg.Storage.MaxImportBytes)
	assert.Equal(t, 5*time.Second, cfg.Bridge.Timeout)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.False(t, cfg.MinIO.Enabled())
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
}

func TestLoadInvalidTimezoneFallsBackToUTC(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	assert.Equal(t, time.UTC, Load().Location)
}

func TestIsLocalRuntime(t *testing.T) {
	cases := map[string]bool{
		"local_dev":        true,
		"LOCAL-box":        true,
		"  local-x ":       true,
		"localhost":        false,
		"a0d7b954-planner": false,
		"":                 false,
	}
	for host, want := range cases {
		cfg := &AppConfig{Hostname: host}
		assert.Equal(t, want, cfg.IsLocalRuntime(), host)
	}
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	t.Setenv(key, "value")

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	t.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	t.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	t.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	t.Setenv(key, "")
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt64(t *testing.T) {
	key := "TEST_INT_VAR"

	t.Setenv(key, "123")
	assert.Equal(t, int64(123), getEnvInt64(key, 0))

	t.Setenv(key, "invalid")
	assert.Equal(t, int64(10), getEnvInt64(key, 10))

	t.Setenv(key, "-5")
	assert.Equal(t, int64(10), getEnvInt64(key, 10))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"

	t.Setenv(key, "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvDuration(key, time.Second))

	t.Setenv(key, "soon")
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))
}
