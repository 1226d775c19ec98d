package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StorageConfig locates the on-disk planner state.
type StorageConfig struct {
	DataFile string
	// TempDir holds export archives and import staging; empty means os.TempDir.
	TempDir                string
	MaxUploadBytes         int64
	MaxImportBytes         int64
	MaxImportExpandedBytes int64
}

// DataDir is the directory holding the canonical document, registries and device files.
func (s StorageConfig) DataDir() string {
	if dir := filepath.Dir(s.DataFile); dir != "" {
		return dir
	}
	return "/data"
}

// AreasFile, FloorsFile and DevicesFile are the registry locations.
func (s StorageConfig) AreasFile() string   { return filepath.Join(s.DataDir(), "areas.json") }
func (s StorageConfig) FloorsFile() string  { return filepath.Join(s.DataDir(), "floors.json") }
func (s StorageConfig) DevicesFile() string { return filepath.Join(s.DataDir(), "devices.json") }

// BridgeConfig configures the external device-registry helper.
type BridgeConfig struct {
	NodeBin string
	Script  string
	Timeout time.Duration
}

// MinIOConfig holds object storage settings for remote backups.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether remote backups are configured.
func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

// BackupConfig controls where remote backups go.
type BackupConfig struct {
	Prefix    string
	URLExpiry time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Host     string
	Port     string
	WebRoot  string
	Hostname string
	Location *time.Location
	Storage  StorageConfig
	Bridge   BridgeConfig
	MinIO    MinIOConfig
	Backup   BackupConfig
}

// IsLocalRuntime reports whether the process runs in a local development
// container, which is signalled by a "local_" or "local-" hostname prefix.
func (c *AppConfig) IsLocalRuntime() bool {
	h := strings.ToLower(strings.TrimSpace(c.Hostname))
	return strings.HasPrefix(h, "local_") || strings.HasPrefix(h, "local-")
}

// Addr is the listen address.
func (c *AppConfig) Addr() string { return c.Host + ":" + c.Port }

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "UTC"))
	if err != nil {
		loc = time.UTC
	}
	return &AppConfig{
		Host:     getEnv("SHP_HOST", ""),
		Port:     getEnv("SHP_PORT", "80"),
		WebRoot:  getEnv("SHP_WEB_ROOT", "/srv"),
		Hostname: getEnv("HOSTNAME", "unknown"),
		Location: loc,
		Storage: StorageConfig{
			DataFile:               getEnv("SHP_DATA_FILE", "/data/data.json"),
			TempDir:                getEnv("SHP_TEMP_DIR", ""),
			MaxUploadBytes:         getEnvInt64("SHP_MAX_UPLOAD_FILE_BYTES", 20<<20),
			MaxImportBytes:         getEnvInt64("SHP_MAX_IMPORT_ARCHIVE_BYTES", 300<<20),
			MaxImportExpandedBytes: getEnvInt64("SHP_MAX_IMPORT_EXPANDED_BYTES", 1<<30),
		},
		Bridge: BridgeConfig{
			NodeBin: getEnv("SHP_NODE_BIN", "node"),
			Script:  getEnv("SHP_BRIDGE_SCRIPT", "/app/ha-device-update.js"),
			Timeout: getEnvDuration("SHP_BRIDGE_TIMEOUT", 20*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Backup: BackupConfig{
			Prefix:    getEnv("BACKUP_PREFIX", "backups/"),
			URLExpiry: getEnvDuration("BACKUP_URL_EXPIRY", time.Hour),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil && i > 0 {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}
