package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
service_name = "risk"
environment = "test"

[http]
port = 18080

[database]
driver = "sqlite"
dsn = "file::memory:"

[risk]
risk_free_rate = 0.04
monte_carlo_paths = 2000
twap_window = "45m"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file values and defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, sampleTOML))
		require.NoError(t, err)

		assert.Equal(t, "risk", cfg.ServiceName)
		assert.Equal(t, 18080, cfg.HTTP.Port)
		assert.Equal(t, 50051, cfg.GRPC.Port)
		assert.Equal(t, 0.04, cfg.Risk.RiskFreeRate)
		assert.Equal(t, 2000, cfg.Risk.MonteCarloPaths)
		assert.Equal(t, 252, cfg.Risk.MonteCarloHorizon)
		assert.Equal(t, 45*time.Minute, cfg.Risk.TWAPWindow)
		assert.Equal(t, 24*time.Hour, cfg.Risk.AlertRetention)
		assert.Equal(t, 30*time.Second, cfg.Risk.MonteCarloTimeout)
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("APP_RISK_SEED", "7")
		t.Setenv("APP_HTTP_PORT", "9999")
		cfg, err := Load(writeConfig(t, sampleTOML))
		require.NoError(t, err)
		assert.Equal(t, uint64(7), cfg.Risk.Seed)
		assert.Equal(t, 9999, cfg.HTTP.Port)
	})

	t.Run("zero risk free rate is kept", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, strings.Replace(sampleTOML, "risk_free_rate = 0.04", "risk_free_rate = 0.0", 1)))
		require.NoError(t, err)
		assert.Zero(t, cfg.Risk.RiskFreeRate)
	})

	t.Run("risk free rate defaults when omitted", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, strings.Replace(sampleTOML, "risk_free_rate = 0.04\n", "", 1)))
		require.NoError(t, err)
		assert.Equal(t, 0.06, cfg.Risk.RiskFreeRate)
		assert.Equal(t, "snowflake", cfg.Snowflake.Type)
		assert.Equal(t, int64(1), cfg.Snowflake.MachineID)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})

	t.Run("mysql requires dsn", func(t *testing.T) {
		_, err := Load(writeConfig(t, "service_name = \"risk\"\n"))
		assert.ErrorContains(t, err, "DSN")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			ServiceName: "risk",
			HTTP:        HTTPConfig{Port: 8080},
			GRPC:        GRPCConfig{Port: 50051},
			Database:    DatabaseConfig{Driver: "sqlite"},
			Risk:        RiskConfig{RiskFreeRate: 0.06, MonteCarloPaths: 100, MonteCarloHorizon: 10},
		}
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Kafka.Enabled = true
	assert.Error(t, c.Validate())

	c = base()
	c.RateLimit = RateLimitConfig{Enabled: true}
	assert.Error(t, c.Validate())

	c = base()
	c.Risk.RiskFreeRate = 2
	assert.Error(t, c.Validate())

	c = base()
	c.Snowflake.MachineID = 1024
	assert.Error(t, c.Validate())

	c = base()
	c.Environment = ""
	require.NoError(t, c.Validate())
	assert.Equal(t, "dev", c.Environment)
}

func TestRedisConfig_Client(t *testing.T) {
	rc := RedisConfig{Host: "cache", Port: 6380, DB: 2, MaxPoolSize: 20, ReadTimeout: 3, WriteTimeout: 4}
	c := rc.Client()
	assert.Equal(t, "cache:6380", c.Addr)
	assert.Equal(t, 2, c.DB)
	assert.Equal(t, 20, c.PoolSize)
	assert.Equal(t, 3*time.Second, c.ReadTimeout)
	assert.Equal(t, 4*time.Second, c.WriteTimeout)
}
