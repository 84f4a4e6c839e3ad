package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	HTTP       HTTPConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	DBPool     DBPoolConfig
	Asynq      AsynqConfig
	S3         S3Config
	Browser    BrowserConfig
	AI         AIConfig
	Pipeline   PipelineConfig
	Monitoring MonitoringConfig
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr string
}

// RedisConfig Redis 配置（队列 + 链接预览缓存共用）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string
}

// DBPoolConfig 数据库连接池配置
type DBPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// AsynqConfig 工作流队列配置
type AsynqConfig struct {
	RedisAddr   string
	Concurrency int
}

// S3Config 文件/缩略图对象存储配置
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // 可选：MinIO 等自建兼容存储
	KeyPrefix string
}

// BrowserConfig 远程无头浏览器渲染服务配置
type BrowserConfig struct {
	Endpoint string
	APIToken string
	Timeout  time.Duration
}

// AIConfig AI 推理服务配置（OpenAI 兼容接口）
type AIConfig struct {
	Endpoint           string
	Model              string
	APIKey             string
	TranscribeEndpoint string
	TranscribeModel    string
}

// PipelineConfig 流水线参数
type PipelineConfig struct {
	BackfillBatchSize int           // AI 补数每批最多处理的卡片数
	CleanupBatchSize  int           // 清理每批最多处理的卡片数
	CleanupRetention  time.Duration // 软删除保留期，超过才物理删除
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Enabled bool
	Port    int
}

// Load 加载配置
func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")

	// 允许从环境变量读取（优先级最高）
	v.AutomaticEnv()

	// 读取配置文件（如果存在）
	_ = v.ReadInConfig() // 忽略错误，因为可能只使用环境变量

	cfg := &Config{}

	// HTTP 配置
	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":28080"
	}

	// Redis 配置
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	// PostgreSQL 配置
	cfg.Postgres.DSN = v.GetString("POSTGRES_DSN")
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	// 数据库连接池配置
	cfg.DBPool.MaxConns = int32(v.GetInt("DB_MAX_CONNS"))
	if cfg.DBPool.MaxConns == 0 {
		cfg.DBPool.MaxConns = 20
	}

	cfg.DBPool.MinConns = int32(v.GetInt("DB_MIN_CONNS"))
	if cfg.DBPool.MinConns == 0 {
		cfg.DBPool.MinConns = 5
	}

	cfg.DBPool.MaxConnLifetime = v.GetDuration("DB_MAX_CONN_LIFETIME")
	if cfg.DBPool.MaxConnLifetime == 0 {
		cfg.DBPool.MaxConnLifetime = 30 * time.Minute
	}

	cfg.DBPool.MaxConnIdleTime = v.GetDuration("DB_MAX_CONN_IDLE_TIME")
	if cfg.DBPool.MaxConnIdleTime == 0 {
		cfg.DBPool.MaxConnIdleTime = 5 * time.Minute
	}

	cfg.DBPool.HealthCheckPeriod = v.GetDuration("DB_HEALTH_CHECK_PERIOD")
	if cfg.DBPool.HealthCheckPeriod == 0 {
		cfg.DBPool.HealthCheckPeriod = 1 * time.Minute
	}

	// Asynq 配置
	cfg.Asynq.RedisAddr = cfg.Redis.Addr
	cfg.Asynq.Concurrency = v.GetInt("ASYNQ_CONCURRENCY")
	if cfg.Asynq.Concurrency == 0 {
		cfg.Asynq.Concurrency = 10
	}

	// S3 配置
	cfg.S3.Bucket = v.GetString("S3_BUCKET")
	cfg.S3.Region = v.GetString("S3_REGION")
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
	cfg.S3.Endpoint = v.GetString("S3_ENDPOINT")
	cfg.S3.KeyPrefix = v.GetString("S3_KEY_PREFIX")
	if cfg.S3.KeyPrefix == "" {
		cfg.S3.KeyPrefix = "cards"
	}

	// 浏览器渲染服务配置
	cfg.Browser.Endpoint = v.GetString("BROWSER_ENDPOINT")
	cfg.Browser.APIToken = v.GetString("BROWSER_API_TOKEN")
	cfg.Browser.Timeout = v.GetDuration("BROWSER_TIMEOUT")
	if cfg.Browser.Timeout == 0 {
		cfg.Browser.Timeout = 30 * time.Second
	}

	// AI 配置
	cfg.AI.Endpoint = v.GetString("AI_ENDPOINT")
	cfg.AI.Model = v.GetString("AI_MODEL")
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	cfg.AI.APIKey = v.GetString("AI_API_KEY")
	cfg.AI.TranscribeEndpoint = v.GetString("AI_TRANSCRIBE_ENDPOINT")
	if cfg.AI.TranscribeEndpoint == "" {
		cfg.AI.TranscribeEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	}
	cfg.AI.TranscribeModel = v.GetString("AI_TRANSCRIBE_MODEL")
	if cfg.AI.TranscribeModel == "" {
		cfg.AI.TranscribeModel = "gpt-4o-mini-transcribe"
	}

	// 流水线参数
	cfg.Pipeline.BackfillBatchSize = v.GetInt("BACKFILL_BATCH_SIZE")
	if cfg.Pipeline.BackfillBatchSize == 0 {
		cfg.Pipeline.BackfillBatchSize = 50
	}
	cfg.Pipeline.CleanupBatchSize = v.GetInt("CLEANUP_BATCH_SIZE")
	if cfg.Pipeline.CleanupBatchSize == 0 {
		cfg.Pipeline.CleanupBatchSize = 10
	}
	cfg.Pipeline.CleanupRetention = v.GetDuration("CLEANUP_RETENTION")
	if cfg.Pipeline.CleanupRetention == 0 {
		cfg.Pipeline.CleanupRetention = 30 * 24 * time.Hour
	}

	// 监控配置
	cfg.Monitoring.Enabled = v.GetBool("MONITORING_ENABLED")
	cfg.Monitoring.Port = v.GetInt("MONITORING_PORT")
	if cfg.Monitoring.Port == 0 {
		cfg.Monitoring.Port = 29091
	}

	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("PostgreSQL DSN is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("Redis address is required")
	}
	if c.Pipeline.BackfillBatchSize <= 0 {
		return fmt.Errorf("backfill batch size must be positive")
	}
	if c.Pipeline.CleanupBatchSize <= 0 {
		return fmt.Errorf("cleanup batch size must be positive")
	}
	return nil
}
