// Package config resolves the runtime configuration in priority order:
// defaults, then the optional YAML file, then GIBIERTRACE_* environment
// variables. Command flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gibiertrace/internal/blob"
	blobcore "gibiertrace/internal/blob/core"
	"gibiertrace/internal/core"
	"gibiertrace/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GIBIERTRACE_"

// Config is the resolved runtime configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Blob     blob.Config    `yaml:"blob"`
	Journal  JournalConfig  `yaml:"journal"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      logging.Config `yaml:"log"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      core.StorageDriver `yaml:"driver"`
	SQLitePath  string             `yaml:"sqlite_path"`
	PostgresDSN string             `yaml:"postgres_dsn"`
}

// Options converts the section into core storage options.
func (s StorageConfig) Options() core.StorageOptions {
	return core.StorageOptions{Driver: s.Driver, SQLitePath: s.SQLitePath, PostgresDSN: s.PostgresDSN}
}

// JournalConfig configures sync batch archiving and backups.
type JournalConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Prefix       string `yaml:"prefix"`
	BackupPrefix string `yaml:"backup_prefix"`
}

// KafkaConfig configures the webhook event publisher. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig configures the shared dispatch dedup store. An empty URL keeps
// dedup in process memory.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// DispatchConfig configures the side-effect dispatcher.
type DispatchConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MaxBodyBytes:    10 << 20,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth:    AuthConfig{Issuer: "gibiertrace"},
		Storage: StorageConfig{Driver: core.StorageSQLite, SQLitePath: "gibiertrace.db"},
		Blob:    blob.Config{Driver: blobcore.DriverFilesystem, FSRoot: "data/blobs"},
		Journal: JournalConfig{Enabled: true, Prefix: "sync", BackupPrefix: "backups"},
		Kafka:   KafkaConfig{Topic: "gibiertrace.events"},
		Redis:   RedisConfig{KeyPrefix: "gibiertrace:dispatch:", TTL: 7 * 24 * time.Hour},
		Log:     logging.Config{Level: "info", Format: logging.FormatText},
		Dispatch: DispatchConfig{
			QueueSize:    256,
			DrainTimeout: 10 * time.Second,
		},
	}
}

// Load resolves the configuration. path may be empty; a named file that does
// not exist is an error. getenv defaults to os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, env{getenv: getenv}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type env struct {
	getenv func(string) string
}

func (e env) lookup(name string) (string, bool) {
	v := strings.TrimSpace(e.getenv(EnvPrefix + name))
	return v, v != ""
}

func (e env) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e env) csv(name string, dst *[]string) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	*dst = parts
}

func (e env) integer(name string, dst *int) error {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func (e env) integer64(name string, dst *int64) error {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func (e env) float(name string, dst *float64) error {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = f
	return nil
}

func (e env) boolean(name string, dst *bool) error {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

func (e env) duration(name string, dst *time.Duration) error {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}

func applyEnv(cfg *Config, e env) error {
	e.str("HTTP_ADDR", &cfg.HTTP.Addr)
	e.str("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	e.str("AUTH_ISSUER", &cfg.Auth.Issuer)
	if v, ok := e.lookup("STORAGE_DRIVER"); ok {
		cfg.Storage.Driver = core.StorageDriver(v)
	}
	e.str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	e.str("STORAGE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	if v, ok := e.lookup("BLOB_DRIVER"); ok {
		cfg.Blob.Driver = blobcore.Driver(v)
	}
	e.str("BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	e.str("BLOB_S3_REGION", &cfg.Blob.S3.Region)
	e.str("BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	e.str("BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	e.str("BLOB_S3_ACCESS_KEY_ID", &cfg.Blob.S3.AccessKeyID)
	e.str("BLOB_S3_SECRET_ACCESS_KEY", &cfg.Blob.S3.SecretAccessKey)
	e.str("JOURNAL_PREFIX", &cfg.Journal.Prefix)
	e.csv("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	e.str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	e.str("REDIS_URL", &cfg.Redis.URL)
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(
		e.integer64("HTTP_MAX_BODY_BYTES", &cfg.HTTP.MaxBodyBytes),
		e.float("HTTP_RATE_LIMIT_RPS", &cfg.HTTP.RateLimitRPS),
		e.integer("HTTP_RATE_LIMIT_BURST", &cfg.HTTP.RateLimitBurst),
		e.duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout),
		e.boolean("BLOB_S3_PATH_STYLE", &cfg.Blob.S3.PathStyle),
		e.boolean("JOURNAL_ENABLED", &cfg.Journal.Enabled),
		e.duration("REDIS_TTL", &cfg.Redis.TTL),
		e.integer("DISPATCH_QUEUE_SIZE", &cfg.Dispatch.QueueSize),
		e.duration("DISPATCH_DRAIN_TIMEOUT", &cfg.Dispatch.DrainTimeout),
	)
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blobcore.DriverFilesystem, blobcore.DriverMemory, blobcore.DriverS3:
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q is not supported", c.Blob.Driver))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
