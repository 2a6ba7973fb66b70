package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CLINIC_SERVER_PORT.
const EnvPrefix = "CLINIC"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Booking   BookingConfig   `mapstructure:"booking"`
	OTP       OTPConfig       `mapstructure:"otp"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" split_words:"true"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" split_words:"true"`
	CORSOrigins    []string      `mapstructure:"cors_origins" envconfig:"CORS_ORIGINS"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Name             string        `mapstructure:"name"`
	SSLMode          string        `mapstructure:"sslmode" envconfig:"SSLMODE"`
	MaxOpenConns     int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout" split_words:"true"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" split_words:"true"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval  time.Duration `mapstructure:"poll_interval" split_words:"true"`
	RetryAttempts int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" split_words:"true"`
	MaxRetries    int           `mapstructure:"max_retries" split_words:"true"`
	Lease         time.Duration `mapstructure:"lease"`
	ChannelPrefix string        `mapstructure:"channel_prefix" split_words:"true"`
	// Retention is how long processed events are kept before the sweeper
	// removes them.
	Retention time.Duration `mapstructure:"retention"`
}

type BookingConfig struct {
	MaxTokenAttempts int    `mapstructure:"max_token_attempts" split_words:"true"`
	Timezone         string `mapstructure:"timezone"`
}

// Location resolves the clinic timezone used to decide what "today" is.
func (c BookingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

type OTPConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	ResendInterval time.Duration `mapstructure:"resend_interval" split_words:"true"`
	Digits         int           `mapstructure:"digits"`
	MaxAttempts    int           `mapstructure:"max_attempts" split_words:"true"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" split_words:"true"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" envconfig:"RPS"`
	Burst int     `mapstructure:"burst"`
}

const (
	SMSDriverOutbox = "outbox"
	SMSDriverLog    = "log"
)

type SMSConfig struct {
	Driver   string `mapstructure:"driver"`
	SenderID string `mapstructure:"sender_id" split_words:"true"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "clinic")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "3s")
	v.SetDefault("database.statement_timeout", "10s")

	v.SetDefault("jwt.issuer", "clinic-api")
	v.SetDefault("jwt.expiry", "24h")

	v.SetDefault("security.bcrypt_cost", 12)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "500ms")
	v.SetDefault("outbox.max_retries", 10)
	v.SetDefault("outbox.lease", "1m")
	v.SetDefault("outbox.channel_prefix", "clinic")
	v.SetDefault("outbox.retention", "168h")

	v.SetDefault("booking.max_token_attempts", 5)
	v.SetDefault("booking.timezone", "UTC")

	v.SetDefault("otp.ttl", "5m")
	v.SetDefault("otp.resend_interval", "30s")
	v.SetDefault("otp.digits", 6)
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.sweep_interval", "1m")

	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("sms.driver", SMSDriverOutbox)
	v.SetDefault("sms.sender_id", "CLINIC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration in three layers: code defaults, then the yaml
// file (configFile, or config.yml on the search path), then CLINIC_*
// environment variables. A .env file in the working directory is loaded
// into the environment first when present.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.JWT.Secret) == "" {
		problems = append(problems, "jwt.secret is required")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		problems = append(problems, "server.mode must be debug, release or test")
	}
	if c.Booking.MaxTokenAttempts < 1 {
		problems = append(problems, "booking.max_token_attempts must be at least 1")
	}
	if _, err := c.Booking.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("booking.timezone: %v", err))
	}
	if c.OTP.TTL <= 0 {
		problems = append(problems, "otp.ttl must be positive")
	}
	if c.OTP.MaxAttempts < 1 {
		problems = append(problems, "otp.max_attempts must be at least 1")
	}
	if c.SMS.Driver != SMSDriverOutbox && c.SMS.Driver != SMSDriverLog {
		problems = append(problems, fmt.Sprintf("sms.driver must be %q or %q", SMSDriverOutbox, SMSDriverLog))
	}
	if c.Database.LockTimeout < 0 || c.Database.StatementTimeout < 0 {
		problems = append(problems, "database timeouts must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
