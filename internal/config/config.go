// Package config provides configuration management using viper.
// It supports loading from YAML files, an optional .env file and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Bot        BotConfig        `mapstructure:"bot"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Timezone        string        `mapstructure:"timezone"`
}

// Location resolves the reporting timezone, falling back to UTC.
func (s *ServerConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PaymentConfig holds payment gateway and reconciliation settings.
type PaymentConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	AuthURL              string        `mapstructure:"auth_url"`
	ClientID             string        `mapstructure:"client_id"`
	ClientSecret         string        `mapstructure:"client_secret"`
	ClientVersion        string        `mapstructure:"client_version"`
	RedirectURL          string        `mapstructure:"redirect_url"`
	Currency             string        `mapstructure:"currency"`
	PricePerDiamondMinor int64         `mapstructure:"price_per_diamond_minor"`
	MaxDiamondsPerOrder  int64         `mapstructure:"max_diamonds_per_order"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	PollAttempts         int           `mapstructure:"poll_attempts"`
	WebhookUsername      string        `mapstructure:"webhook_username"`
	WebhookPassword      string        `mapstructure:"webhook_password"`
}

// WithdrawalConfig holds per-currency withdrawal policy.
type WithdrawalConfig struct {
	Diamond WithdrawalPolicy `mapstructure:"diamond"`
	Star    WithdrawalPolicy `mapstructure:"star"`
}

// WithdrawalPolicy is the minimum request size and money value of one unit.
type WithdrawalPolicy struct {
	Minimum        int64  `mapstructure:"minimum"`
	ConversionRate string `mapstructure:"conversion_rate"`
}

// Rate parses the conversion rate. Load rejects malformed rates, so a
// zero here only comes from a policy built by hand.
func (p WithdrawalPolicy) Rate() decimal.Decimal {
	rate, err := decimal.NewFromString(p.ConversionRate)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

// Validate checks that the minimum is not negative and the conversion rate
// is a non-negative decimal.
func (p WithdrawalPolicy) Validate() error {
	if p.Minimum < 0 {
		return fmt.Errorf("minimum %d is negative", p.Minimum)
	}
	rate, err := decimal.NewFromString(p.ConversionRate)
	if err != nil {
		return fmt.Errorf("conversion_rate %q is not a decimal", p.ConversionRate)
	}
	if rate.IsNegative() {
		return fmt.Errorf("conversion_rate %s is negative", rate)
	}
	return nil
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// BotConfig holds Telegram admin bot configuration.
// The bot is disabled when the token is empty.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory. A .env file in the
// working directory, when present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, PAYMENT_CLIENT_SECRET, BOT_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := c.Withdrawal.Diamond.Validate(); err != nil {
		return fmt.Errorf("withdrawal.diamond: %w", err)
	}
	if err := c.Withdrawal.Star.Validate(); err != nil {
		return fmt.Errorf("withdrawal.star: %w", err)
	}
	if c.Payment.PricePerDiamondMinor <= 0 {
		return errors.New("payment.price_per_diamond_minor must be positive")
	}
	if c.Payment.MaxDiamondsPerOrder <= 0 {
		return errors.New("payment.max_diamonds_per_order must be positive")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.timezone", "Asia/Kolkata")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wallet")
	v.SetDefault("database.name", "wallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("payment.base_url", "https://api-preprod.phonepe.com/apis/pg-sandbox")
	v.SetDefault("payment.auth_url", "https://api-preprod.phonepe.com/apis/pg-sandbox")
	v.SetDefault("payment.client_version", "1")
	v.SetDefault("payment.client_id", "")
	v.SetDefault("payment.client_secret", "")
	v.SetDefault("payment.redirect_url", "")
	v.SetDefault("payment.webhook_username", "")
	v.SetDefault("payment.webhook_password", "")
	v.SetDefault("payment.currency", "INR")
	v.SetDefault("payment.price_per_diamond_minor", 100)
	v.SetDefault("payment.max_diamonds_per_order", 100000)
	v.SetDefault("payment.request_timeout", "15s")
	v.SetDefault("payment.poll_interval", "5s")
	v.SetDefault("payment.poll_attempts", 240)

	v.SetDefault("withdrawal.diamond.minimum", 1)
	v.SetDefault("withdrawal.diamond.conversion_rate", "1")
	v.SetDefault("withdrawal.star.minimum", 1)
	v.SetDefault("withdrawal.star.conversion_rate", "0.25")

	// Keys without a real default are still registered so AutomaticEnv
	// can override them.
	v.SetDefault("database.password", "")
	v.SetDefault("bot.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
