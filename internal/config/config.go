// Package config's AppConfig carries the process-level environment knobs
// (ports, DSNs, cache/storage toggles) that bootstrap cmd/sacks and
// cmd/sacksd, as distinct from Store, which owns the hot-reloaded supplier
// format documents. Adapted from the teacher's internal/config/config.go:
// same viper + godotenv + sync.Once idiom, generalized from the PO app's
// fixed Database/Cache shape to the ingest service's config surface
// (config dir, storage, Drive).
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig is the process-wide environment configuration for cmd/sacks and
// cmd/sacksd, per spec.md §6's environment variables plus SPEC_FULL.md's
// supplemental domain-stack toggles.
type AppConfig struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	App      AppDirs
}

// ServerConfig configures cmd/sacksd's gin HTTP surface.
type ServerConfig struct {
	Port           string
	Mode           string
	AllowedOrigins []string
}

// DatabaseConfig is the Bulk Upsert Coordinator's postgres DSN, either as
// one DATABASE_URL or discrete DB_* parts (teacher idiom).
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN assembles a libpq connection string, preferring an explicit URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return "host=" + d.Host + " port=" + d.Port + " user=" + d.User +
		" password=" + d.Password + " dbname=" + d.DBName + " sslmode=" + d.SSLMode
}

// CacheConfig toggles internal/cache's redis-backed ProcessingResult cache.
type CacheConfig struct {
	Enabled    bool
	RedisURL   string
	RedisHost  string
	RedisPort  string
	Password   string
	DB         int
	TTLSeconds int
}

// StorageConfig toggles internal/storage's minio staging bucket.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DriveConfig toggles internal/drive's Google Drive polling source.
type DriveConfig struct {
	Enabled         bool
	CredentialsJSON string
	FolderID        string
	PollSeconds     int
}

// AppDirs are local filesystem staging directories.
type AppDirs struct {
	ConfigDir string
	UploadDir string
	DataDir   string
}

var (
	once     sync.Once
	instance *AppConfig
)

// Load reads the environment once (via viper.AutomaticEnv, after an
// optional .env load) and caches the result, mirroring the teacher's
// sync.Once singleton.
func Load() *AppConfig {
	once.Do(func() {
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

		viper.SetDefault("DATABASE_URL", "")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "sacks")
		viper.SetDefault("DB_SSLMODE", "disable")

		viper.SetDefault("SACKS_CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("SACKS_CACHE_TTL_SECONDS", 300)

		viper.SetDefault("SACKS_STORAGE_ENABLED", false)
		viper.SetDefault("SACKS_STORAGE_ENDPOINT", "127.0.0.1:9000")
		viper.SetDefault("SACKS_STORAGE_ACCESS_KEY", "")
		viper.SetDefault("SACKS_STORAGE_SECRET_KEY", "")
		viper.SetDefault("SACKS_STORAGE_BUCKET", "sacks-uploads")
		viper.SetDefault("SACKS_STORAGE_USE_SSL", false)

		viper.SetDefault("SACKS_DRIVE_ENABLED", false)
		viper.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
		viper.SetDefault("SACKS_DRIVE_FOLDER_ID", "")
		viper.SetDefault("SACKS_DRIVE_POLL_SECONDS", 60)

		viper.SetDefault("SACKS_CONFIG_DIR", "./config/suppliers")
		viper.SetDefault("APP_UPLOAD_DIR", "./data/uploads")
		viper.SetDefault("APP_DATA_DIR", "./data/output")

		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_UPLOAD_DIR"))
		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &AppConfig{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				URL:      viper.GetString("DATABASE_URL"),
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:    viper.GetBool("SACKS_CACHE_ENABLED"),
				RedisURL:   viper.GetString("REDIS_URL"),
				RedisHost:  viper.GetString("REDIS_HOST"),
				RedisPort:  viper.GetString("REDIS_PORT"),
				Password:   viper.GetString("REDIS_PASSWORD"),
				DB:         viper.GetInt("REDIS_DB"),
				TTLSeconds: viper.GetInt("SACKS_CACHE_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Enabled:   viper.GetBool("SACKS_STORAGE_ENABLED"),
				Endpoint:  viper.GetString("SACKS_STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("SACKS_STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("SACKS_STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("SACKS_STORAGE_BUCKET"),
				UseSSL:    viper.GetBool("SACKS_STORAGE_USE_SSL"),
			},
			Drive: DriveConfig{
				Enabled:         viper.GetBool("SACKS_DRIVE_ENABLED"),
				CredentialsJSON: viper.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
				FolderID:        viper.GetString("SACKS_DRIVE_FOLDER_ID"),
				PollSeconds:     viper.GetInt("SACKS_DRIVE_POLL_SECONDS"),
			},
			App: AppDirs{
				ConfigDir: viper.GetString("SACKS_CONFIG_DIR"),
				UploadDir: viper.GetString("APP_UPLOAD_DIR"),
				DataDir:   viper.GetString("APP_DATA_DIR"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
}
