// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	libconfig "github.com/wyfcoding/pkg/config"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// gRPC 服务配置
	GRPC GRPCConfig `mapstructure:"grpc"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	// 风控参数
	Risk RiskConfig `mapstructure:"risk"`
	// 告警 ID 生成器
	Snowflake libconfig.SnowflakeConfig `mapstructure:"snowflake"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // 秒
	WriteTimeout int    `mapstructure:"write_timeout"` // 秒
}

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	Host                 string `mapstructure:"host"`
	Port                 int    `mapstructure:"port"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, sqlite
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"` // 秒
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"` // 毫秒
	AutoMigrate        bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 为 false 时不连接 Redis，市场数据缓存与分布式限流随之关闭
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Client 转换为 pkg/redis 客户端配置，超时单位为秒
func (r RedisConfig) Client() *libconfig.RedisConfig {
	return &libconfig.RedisConfig{
		Addr:         fmt.Sprintf("%s:%d", r.Host, r.Port),
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.MaxPoolSize,
		ReadTimeout:  time.Duration(r.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(r.WriteTimeout) * time.Second,
	}
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 为 false 时评估事件只在进程内分发
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	// 为 true 时事件先落 outbox 表再由后台任务投递，否则直接写 Kafka
	UseOutbox    bool `mapstructure:"use_outbox"`
	MaxRetries   int  `mapstructure:"max_retries"`
	RetryBackoff int  `mapstructure:"retry_backoff"` // 毫秒
}

// LoggerConfig 日志配置，输出固定为 JSON
type LoggerConfig struct {
	Level string `mapstructure:"level"`
	// stdout 或 file，file 时按 lumberjack 参数切割
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	QPS     int  `mapstructure:"qps"`
	Burst   int  `mapstructure:"burst"`
}

// RiskConfig 风控引擎参数
type RiskConfig struct {
	// 年化无风险利率
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	// 蒙特卡洛默认路径数与期限（交易日）
	MonteCarloPaths   int `mapstructure:"monte_carlo_paths"`
	MonteCarloHorizon int `mapstructure:"monte_carlo_horizon"`
	// 单次蒙特卡洛模拟的最长耗时
	MonteCarloTimeout time.Duration `mapstructure:"monte_carlo_timeout"`
	// 并行 worker 数，0 表示按 CPU 数
	MonteCarloWorkers int `mapstructure:"monte_carlo_workers"`
	// 随机种子，相同种子与输入得到相同结果
	Seed uint64 `mapstructure:"seed"`
	// 严重告警保留时长
	AlertRetention time.Duration `mapstructure:"alert_retention"`
	// 拆单执行窗口
	TWAPWindow time.Duration `mapstructure:"twap_window"`
	// 市场统计数据缓存时长
	MarketStatsTTL time.Duration `mapstructure:"market_stats_ttl"`
	// outbox 投递间隔与批量
	OutboxInterval  time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize int           `mapstructure:"outbox_batch_size"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return unmarshal(v)
}

// LoadWithDefaults 从 TOML 文件加载配置，文件不存在时只使用默认值
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	_ = v.ReadInConfig()

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// 环境变量覆盖，例如 APP_RISK_SEED
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if c.Risk.RiskFreeRate < 0 || c.Risk.RiskFreeRate > 1 {
		return fmt.Errorf("invalid risk_free_rate: %v", c.Risk.RiskFreeRate)
	}
	if c.Risk.MonteCarloPaths <= 0 {
		return fmt.Errorf("monte_carlo_paths must be positive")
	}
	if c.Risk.MonteCarloHorizon <= 0 {
		return fmt.Errorf("monte_carlo_horizon must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.QPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit qps and burst must be positive")
	}
	// snowflake 节点号占 10 位
	if c.Snowflake.Type != "sonyflake" && (c.Snowflake.MachineID < 0 || c.Snowflake.MachineID > 1023) {
		return fmt.Errorf("invalid snowflake machine_id: %d", c.Snowflake.MachineID)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "risk")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.max_concurrent_streams", 1000)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.use_outbox", true)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.qps", 5)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("risk.risk_free_rate", 0.06)
	v.SetDefault("risk.monte_carlo_paths", 10000)
	v.SetDefault("risk.monte_carlo_horizon", 252)
	v.SetDefault("risk.monte_carlo_timeout", "30s")
	v.SetDefault("risk.monte_carlo_workers", 0)
	v.SetDefault("risk.seed", 42)
	v.SetDefault("risk.alert_retention", "24h")
	v.SetDefault("risk.twap_window", "30m")
	v.SetDefault("risk.market_stats_ttl", "5m")
	v.SetDefault("risk.outbox_interval", "5s")
	v.SetDefault("risk.outbox_batch_size", 100)

	v.SetDefault("snowflake.type", "snowflake")
	v.SetDefault("snowflake.machine_id", 1)
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
