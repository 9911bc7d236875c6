package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	Platform   PlatformConfig  `mapstructure:"platform"`
	Forward    ForwardConfig   `mapstructure:"forward"`
	Directory  DirectoryConfig `mapstructure:"directory"`
	Audit      AuditConfig     `mapstructure:"audit"`
	AuditSink  AuditSinkConfig `mapstructure:"audit_sink"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Reports    ReportsConfig   `mapstructure:"reports"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	BodyLimit string `mapstructure:"body_limit"` // echo BodyLimit syntax, e.g. "1M"
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// PlatformConfig describes the WhatsApp Cloud API (Graph) the relay talks to.
type PlatformConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIVersion  string        `mapstructure:"api_version"`
	AccessToken string        `mapstructure:"access_token"`
	VerifyToken string        `mapstructure:"verify_token"`
	Timeout     time.Duration `mapstructure:"timeout"`     // 0 = transport default
	MediaHosts  []string      `mapstructure:"media_hosts"` // /download allowlist (host suffixes), empty = any
}

type ForwardConfig struct {
	SharedSecret string        `mapstructure:"shared_secret"`
	SecretHeader string        `mapstructure:"secret_header"`
	Timeout      time.Duration `mapstructure:"timeout"` // 0 = transport default
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"` // 0 disables the breaker
	OpenFor       time.Duration `mapstructure:"open_for"`
}

const (
	DirectorySourceStatic = "static"
	DirectorySourceMySQL  = "mysql"

	AuditSinkMySQL = "mysql"
	AuditSinkLog   = "log"
)

type DirectoryConfig struct {
	Source       string         `mapstructure:"source"` // static | mysql
	SnapshotFile string         `mapstructure:"snapshot_file"`
	Tenants      []TenantConfig `mapstructure:"tenants"`
	CacheTTL     time.Duration  `mapstructure:"cache_ttl"` // redis read-through cache, 0 = off
}

// TenantConfig is one entry of the static directory snapshot.
type TenantConfig struct {
	CustomerID string `mapstructure:"customer_id" yaml:"customer_id"`
	RoutingKey string `mapstructure:"phone_number_id" yaml:"phone_number_id"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Active     bool   `mapstructure:"active" yaml:"active"`
}

type AuditConfig struct {
	Sink  string `mapstructure:"sink"`  // mysql | log
	Topic string `mapstructure:"topic"` // outbox topic for audit transitions
}

type AuditSinkConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"` // empty = redis disabled
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"` // per phone_number_id, 0 = off
}

type ReportsConfig struct {
	APIKey string `mapstructure:"api_key"` // empty disables /v1/reports
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (WARELAY_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		// a missing file is fine (defaults + env), a broken one is not
		if err := v.MergeInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("merge %s: %w", path, err)
		}
	}

	// env override (WARELAY_PLATFORM_ACCESS_TOKEN, ...)
	v.SetEnvPrefix("WARELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the relay cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Platform.VerifyToken) == "" {
		errs = append(errs, errors.New("platform.verify_token is required"))
	}
	if strings.TrimSpace(c.Platform.AccessToken) == "" {
		errs = append(errs, errors.New("platform.access_token is required"))
	}
	if strings.TrimSpace(c.Platform.APIVersion) == "" {
		errs = append(errs, errors.New("platform.api_version is required"))
	}
	if strings.TrimSpace(c.Forward.SharedSecret) == "" {
		errs = append(errs, errors.New("forward.shared_secret is required"))
	}

	switch c.Directory.Source {
	case DirectorySourceStatic:
	case DirectorySourceMySQL:
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("directory.source=mysql needs mysql.dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown directory.source %q", c.Directory.Source))
	}

	switch c.Audit.Sink {
	case AuditSinkLog:
	case AuditSinkMySQL:
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("audit.sink=mysql needs mysql.dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit.sink %q", c.Audit.Sink))
	}

	return errors.Join(errs...)
}

// NeedsMySQL reports whether any configured component reads or writes MySQL.
func (c Config) NeedsMySQL() bool {
	return c.Directory.Source == DirectorySourceMySQL || c.Audit.Sink == AuditSinkMySQL
}
