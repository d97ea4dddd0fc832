// Package config loads the contentbase command configuration from the
// environment and an optional .env file.
package config

import (
	"encoding/hex"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/adrianmcphee/contentbase"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration, one section per concern. Every key maps
// to an upper-case environment variable: backend.type is BACKEND_TYPE.
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Lock      LockConfig      `mapstructure:"lock"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
}

// BackendConfig selects the blob store
type BackendConfig struct {
	// Type is filesystem, s3, minio or gcs
	Type     string `mapstructure:"type" default:"filesystem"`
	Bucket   string `mapstructure:"bucket" default:"./data"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	// Static credentials for MinIO
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" default:"false"`
	// GCS service account file; application default credentials when empty
	CredentialsFile string `mapstructure:"credentials_file"`
	Project         string `mapstructure:"project"`
	// Hex-encoded 32-byte key; when set every object is encrypted at rest
	EncryptionKey string `mapstructure:"encryption_key"`
}

// RedisConfig configures the shared Redis client
type RedisConfig struct {
	Addr     string `mapstructure:"addr" default:"localhost:6379"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" default:"0"`
	PoolSize int    `mapstructure:"pool_size" default:"0"`
	// Prefix namespaces every key written by contentbase
	Prefix string `mapstructure:"prefix" default:"contentbase"`
}

// LockConfig configures the resource locker
type LockConfig struct {
	// Distributed selects the Redis locker; false keeps locks in process
	Distributed bool          `mapstructure:"distributed" default:"true"`
	TTL         time.Duration `mapstructure:"ttl" default:"30s"`
}

// CacheConfig configures cache stores
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" default:"10m"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level" default:"info"`
	Format string `mapstructure:"format" default:"json"`
}

// DownloadsConfig limits download sessions
type DownloadsConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" default:"3"`
	SessionTTL    time.Duration `mapstructure:"session_ttl" default:"30m"`
}

// SnapshotsConfig configures document history
type SnapshotsConfig struct {
	Retroactive bool `mapstructure:"retroactive" default:"true"`
}

// Load reads dir/.env if present, then the environment. Variables already
// set in the environment are overridden by the .env file.
func Load(dir string) (*Config, error) {
	// A missing .env is normal in production
	_ = godotenv.Overload(filepath.Join(dir, ".env"))

	v := viper.New()
	bindValues(v, Config{}, "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, contentbase.WithContext(contentbase.ErrInvalidConfig, map[string]interface{}{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindValues registers every key with its default tag so AutomaticEnv can
// find it
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// time.Duration is not a struct, so only config sections recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}

// Validate checks the settings that would otherwise fail late
func (c *Config) Validate() error {
	if err := c.Backend.ToBackendConfig().Validate(); err != nil {
		return err
	}
	if _, err := c.Backend.Key(); err != nil {
		return err
	}
	if c.Downloads.MaxConcurrent <= 0 {
		return contentbase.WithContext(contentbase.ErrInvalidConfig, map[string]interface{}{
			"field":  "downloads.max_concurrent",
			"reason": "must be positive",
		})
	}
	if c.Lock.TTL <= 0 {
		return contentbase.WithContext(contentbase.ErrInvalidConfig, map[string]interface{}{
			"field":  "lock.ttl",
			"reason": "must be positive",
		})
	}
	return nil
}

// ToBackendConfig converts the section for contentbase backends
func (b BackendConfig) ToBackendConfig() contentbase.BackendConfig {
	return contentbase.BackendConfig{
		Type:     b.Type,
		Bucket:   b.Bucket,
		Region:   b.Region,
		Endpoint: b.Endpoint,
	}
}

// Key decodes EncryptionKey. It returns nil when encryption is off.
func (b BackendConfig) Key() ([]byte, error) {
	if b.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(b.EncryptionKey)
	if err != nil || len(key) != 32 {
		return nil, contentbase.WithContext(contentbase.ErrInvalidConfig, map[string]interface{}{
			"field":  "backend.encryption_key",
			"reason": "must be 64 hex characters",
		})
	}
	return key, nil
}

// MinIOConfig converts the section for a MinIO backend
func (b BackendConfig) MinIOConfig() contentbase.MinIOConfig {
	return contentbase.MinIOConfig{
		Endpoint:        b.Endpoint,
		AccessKeyID:     b.AccessKey,
		SecretAccessKey: b.SecretKey,
		UseSSL:          b.UseSSL,
		Bucket:          b.Bucket,
	}
}

// GCSConfig converts the section for a GCS backend
func (b BackendConfig) GCSConfig() contentbase.GCSConfig {
	return contentbase.GCSConfig{
		ProjectID:       b.Project,
		Bucket:          b.Bucket,
		CredentialsFile: b.CredentialsFile,
		Endpoint:        b.Endpoint,
	}
}
