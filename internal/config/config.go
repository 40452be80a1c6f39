package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"claim-batch/internal/observability/logging"
)

const envPrefix = "CLAIMBATCH"

// Config is the process configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         logging.Config    `mapstructure:"log"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Calculation CalculationConfig `mapstructure:"calculation"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	TenantID  string `mapstructure:"tenant_id"`
}

// RedisConfig configures the report cache.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	ReportTTL time.Duration `mapstructure:"report_ttl"`
}

// KafkaConfig configures the outbox relay.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OutboxConfig configures outbox dispatching.
type OutboxConfig struct {
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	BatchSize        int           `mapstructure:"batch_size"`
}

// CalculationConfig points at the calculation catalog.
type CalculationConfig struct {
	CatalogFile string `mapstructure:"catalog_file"`
}

// SchedulerConfig configures the monthly batch trigger.
type SchedulerConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DayOfMonth  int     `mapstructure:"day_of_month"`
	At          string  `mapstructure:"at"`
	Locations   []int64 `mapstructure:"locations"`
	AuditUserID int64   `mapstructure:"audit_user_id"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.tenant_id", "default")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.report_ttl", 10*time.Minute)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "claim-batch.events")
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("outbox.dispatch_interval", 5*time.Second)
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("calculation.catalog_file", "")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.day_of_month", 1)
	v.SetDefault("scheduler.at", "02:00")
	v.SetDefault("scheduler.locations", []int64{})
	v.SetDefault("scheduler.audit_user_id", 0)
}

// Load reads the optional YAML file at path, merges CLAIMBATCH_* env
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic is required when kafka is enabled")
		}
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("outbox.batch_size must be positive")
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.DayOfMonth < 1 || c.Scheduler.DayOfMonth > 28 {
			return errors.New("scheduler.day_of_month must be within 1..28")
		}
		if _, err := time.Parse("15:04", c.Scheduler.At); err != nil {
			return fmt.Errorf("scheduler.at: %w", err)
		}
	}
	return nil
}

// RequireDatabase reports an error when no database url is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url (CLAIMBATCH_DATABASE_URL) is required")
	}
	return nil
}
