package config

import (
	"fmt"
	"strings"

	"github.com/gateflow/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Log       LogConfig                `mapstructure:"log"`
	Database  DatabaseConfig           `mapstructure:"database"`
	Redis     RedisConfig              `mapstructure:"redis"`
	Queue     QueueConfig              `mapstructure:"queue"`
	Merchant  MerchantConfig           `mapstructure:"merchant"`
	Payment   PaymentConfig            `mapstructure:"payment"`
	Gateways  map[string]GatewayConfig `mapstructure:"gateways"`
	CORS      CORSConfig               `mapstructure:"cors"`
	RateLimit RateLimitConfig          `mapstructure:"rate_limit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`            // debug / release
	PublicBaseURL string `mapstructure:"public_base_url"` // 对外访问地址，用于拼接回调与虚拟网关地址
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	AutoVerify  bool           `mapstructure:"auto_verify"` // 回调就绪后投递异步核验任务
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// MerchantConfig 商户接入配置
type MerchantConfig struct {
	JWTSecret   string            `mapstructure:"jwt_secret"`
	ExpireHours int               `mapstructure:"expire_hours"`
	Accounts    []MerchantAccount `mapstructure:"accounts"`
}

// MerchantAccount 商户账号，secret 以 bcrypt 哈希保存
type MerchantAccount struct {
	Name       string   `mapstructure:"name"`
	SecretHash string   `mapstructure:"secret_hash"`
	Roles      []string `mapstructure:"roles"` // viewer / operator / finance / owner，留空为 owner
}

// PaymentConfig 支付编排配置
type PaymentConfig struct {
	MinTrackingNumber int64          `mapstructure:"min_tracking_number"`
	TokenQueryName    string         `mapstructure:"token_query_name"`
	CallbackPath      string         `mapstructure:"callback_path"`
	LockTTLSeconds    int            `mapstructure:"lock_ttl_seconds"`
	Messages          MessagesConfig `mapstructure:"messages"`
	Virtual           VirtualGateway `mapstructure:"virtual"`
}

// MessagesConfig 结果提示文案
type MessagesConfig struct {
	PaymentSucceed                    string `mapstructure:"payment_succeed"`
	PaymentFailed                     string `mapstructure:"payment_failed"`
	PaymentIsAlreadyProcessedBefore   string `mapstructure:"payment_is_already_processed_before"`
	PaymentCanceledProgrammatically   string `mapstructure:"payment_canceled_programmatically"`
	OnlyCompletedPaymentCanBeRefunded string `mapstructure:"only_completed_payment_can_be_refunded"`
	DuplicateTrackingNumber           string `mapstructure:"duplicate_tracking_number"`
	RefundAmountExceedsPaidAmount     string `mapstructure:"refund_amount_exceeds_paid_amount"`
	InvalidDataReceivedFromGateway    string `mapstructure:"invalid_data_received_from_gateway"`
}

// VirtualGateway 虚拟网关配置
type VirtualGateway struct {
	Enabled     bool   `mapstructure:"enabled"`
	GatewayPath string `mapstructure:"gateway_path"`
}

// GatewayConfig 单个网关配置，Options 原样交给网关解析
type GatewayConfig struct {
	Enabled bool                   `mapstructure:"enabled"`
	Account string                 `mapstructure:"account"`
	Options map[string]interface{} `mapstructure:"options"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Login    RateLimitRuleConfig `mapstructure:"login"`
	Callback RateLimitRuleConfig `mapstructure:"callback"`
}

// RateLimitRuleConfig 单条限流规则
type RateLimitRuleConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		logger.Infow("dotenv_loaded", "file", ".env")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../")
	v.AddConfigPath("./etc")
	setDefaults(v)

	// 环境变量支持，例如 server.port -> SERVER_PORT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Gateways == nil {
		cfg.Gateways = map[string]GatewayConfig{}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_base_url", "http://127.0.0.1:8080")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/gateflow.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "gf")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.auto_verify", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("merchant.jwt_secret", "change-me-in-production")
	v.SetDefault("merchant.expire_hours", 24)
	v.SetDefault("payment.min_tracking_number", 1000)
	v.SetDefault("payment.token_query_name", "paymentToken")
	v.SetDefault("payment.callback_path", "/api/v1/payments/callback")
	v.SetDefault("payment.lock_ttl_seconds", 30)
	v.SetDefault("payment.messages.payment_succeed", "Payment is succeed.")
	v.SetDefault("payment.messages.payment_failed", "Payment is failed.")
	v.SetDefault("payment.messages.payment_is_already_processed_before", "The requested payment is already processed before.")
	v.SetDefault("payment.messages.payment_canceled_programmatically", "Payment canceled programmatically.")
	v.SetDefault("payment.messages.only_completed_payment_can_be_refunded", "Only a completed payment can be refunded.")
	v.SetDefault("payment.messages.duplicate_tracking_number", "The tracking number is already used.")
	v.SetDefault("payment.messages.refund_amount_exceeds_paid_amount", "The refund amount exceeds the refundable amount of the payment.")
	v.SetDefault("payment.messages.invalid_data_received_from_gateway", "Invalid data is received from the gateway.")
	v.SetDefault("payment.virtual.enabled", true)
	v.SetDefault("payment.virtual.gateway_path", "/virtual-gateway")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("rate_limit.login.window_seconds", 300)
	v.SetDefault("rate_limit.login.max_requests", 10)
	v.SetDefault("rate_limit.callback.window_seconds", 60)
	v.SetDefault("rate_limit.callback.max_requests", 120)
}
