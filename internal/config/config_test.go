package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(100), cfg.Payment.PricePerDiamondMinor)
	assert.Equal(t, int64(100000), cfg.Payment.MaxDiamondsPerOrder)
	assert.Equal(t, 5*time.Second, cfg.Payment.PollInterval)
	assert.Equal(t, 240, cfg.Payment.PollAttempts)
	assert.Equal(t, "INR", cfg.Payment.Currency)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
database:
  host: filehost
  name: walletdb
payment:
  poll_attempts: 12
withdrawal:
  star:
    minimum: 500
    conversion_rate: "0.5"
admin:
  ids: [11, 22]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("DATABASE_HOST", "envhost")
	t.Setenv("PAYMENT_CLIENT_SECRET", "s3cret")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "envhost", cfg.Database.Host)
	assert.Equal(t, "walletdb", cfg.Database.Name)
	assert.Equal(t, "s3cret", cfg.Payment.ClientSecret)
	assert.Equal(t, 12, cfg.Payment.PollAttempts)
	assert.Equal(t, int64(500), cfg.Withdrawal.Star.Minimum)
	assert.True(t, decimal.RequireFromString("0.5").Equal(cfg.Withdrawal.Star.Rate()))
	assert.True(t, cfg.IsAdmin(22))
	assert.False(t, cfg.IsAdmin(33))
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "postgres://u:p@db:5433/n?sslmode=disable", d.DSN())
}

func TestWithdrawalPolicyRate_Malformed(t *testing.T) {
	assert.True(t, WithdrawalPolicy{ConversionRate: "abc"}.Rate().IsZero())
}

func TestWithdrawalPolicyValidate(t *testing.T) {
	assert.NoError(t, WithdrawalPolicy{Minimum: 1, ConversionRate: "0.25"}.Validate())
	assert.NoError(t, WithdrawalPolicy{ConversionRate: "0"}.Validate())

	assert.Error(t, WithdrawalPolicy{ConversionRate: "abc"}.Validate())
	assert.Error(t, WithdrawalPolicy{ConversionRate: ""}.Validate())
	assert.Error(t, WithdrawalPolicy{ConversionRate: "-1"}.Validate())
	assert.Error(t, WithdrawalPolicy{Minimum: -5, ConversionRate: "1"}.Validate())
}

func TestLoad_RejectsMalformedConversionRate(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
withdrawal:
  diamond:
    conversion_rate: "1,5"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "withdrawal.diamond")
}

func TestLoad_RejectsMalformedRateFromEnv(t *testing.T) {
	t.Setenv("WITHDRAWAL_STAR_CONVERSION_RATE", "quarter")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "withdrawal.star")
}

func TestLoad_RejectsNonPositiveOrderCap(t *testing.T) {
	t.Setenv("PAYMENT_MAX_DIAMONDS_PER_ORDER", "0")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestServerLocation(t *testing.T) {
	assert.Equal(t, time.UTC, (&ServerConfig{}).Location())
	assert.Equal(t, time.UTC, (&ServerConfig{Timezone: "Not/AZone"}).Location())
}
