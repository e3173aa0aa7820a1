package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for crashlens.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Mclogs    MclogsConfig    `mapstructure:"mclogs"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// RemoteConfig points at the pastebin/predicate document refreshed at runtime.
// An empty URL keeps the built-in defaults.
type RemoteConfig struct {
	URL             string        `mapstructure:"url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RefreshCron     string        `mapstructure:"refresh_cron"`
	Required        bool          `mapstructure:"required"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig tunes the retrievers and their shared HTTP client.
type RetrievalConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        int           `mapstructure:"retries"`
	Backoff        time.Duration `mapstructure:"backoff"`
	MaxBytes       int64         `mapstructure:"max_bytes"`
	UserAgent      string        `mapstructure:"user_agent"`
	Concurrency    int           `mapstructure:"concurrency"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	BrowserEnabled bool          `mapstructure:"browser_enabled"`
	BrowserTimeout time.Duration `mapstructure:"browser_timeout"`
	GistAPI        string        `mapstructure:"gist_api"`
}

func (r RetrievalConfig) Validate() error {
	if r.Retries < 0 {
		return fmt.Errorf("retrieval.retries cannot be negative")
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("retrieval.concurrency must be > 0")
	}
	if r.MaxBytes <= 0 {
		return fmt.Errorf("retrieval.max_bytes must be > 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings. Redis backs the body cache
// and is optional.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings. Without a url or
// host, reports are not persisted.
type PostgresConfig struct {
	URL        string        `mapstructure:"url"`
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	DBName     string        `mapstructure:"dbname"`
	SSLMode    string        `mapstructure:"sslmode"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Migrations string        `mapstructure:"migrations"`
	Retention  time.Duration `mapstructure:"retention"`
}

func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if p.Retention < 0 {
		return fmt.Errorf("storage.postgres.retention cannot be negative")
	}
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the configured url, or one built from the host fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", errors.New("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

type MclogsConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.max_body_bytes", 8<<20)
	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("remote.refresh_interval", time.Hour)
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("retrieval.timeout", 20*time.Second)
	v.SetDefault("retrieval.retries", 2)
	v.SetDefault("retrieval.backoff", 250*time.Millisecond)
	v.SetDefault("retrieval.max_bytes", 16<<20)
	v.SetDefault("retrieval.user_agent", "crashlens/1.0 (+https://github.com/cozy-crashes/crashlens)")
	v.SetDefault("retrieval.concurrency", 4)
	v.SetDefault("retrieval.cache_ttl", 15*time.Minute)
	v.SetDefault("retrieval.browser_enabled", false)
	v.SetDefault("retrieval.browser_timeout", 30*time.Second)
	v.SetDefault("retrieval.gist_api", "https://api.github.com")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.timeout", 10*time.Second)
	v.SetDefault("storage.postgres.migrations", "file://migrations")
	v.SetDefault("storage.postgres.retention", 30*24*time.Hour)
	v.SetDefault("mclogs.endpoint", "https://api.mclo.gs")
}

// keys lists every setting so AutomaticEnv can populate values that no
// config file mentions.
var keys = []string{
	"general.debug",
	"server.jwt_secret",
	"remote.url", "remote.refresh_cron", "remote.required",
	"storage.redis.host", "storage.redis.password", "storage.redis.db",
	"storage.postgres.url", "storage.postgres.host", "storage.postgres.port",
	"storage.postgres.user", "storage.postgres.password", "storage.postgres.dbname",
	"storage.postgres.sslmode",
}

// LoadConfig reads config.yaml from path, or from ./config, . and the
// executable's directory when path is empty. CRASHLENS_* environment
// variables override file values. A missing file is not an error when path
// is empty.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CRASHLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Remote.Required && strings.TrimSpace(c.Remote.URL) == "" {
		return fmt.Errorf("remote.url required when remote.required is set")
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	return c.Storage.Postgres.Validate()
}
