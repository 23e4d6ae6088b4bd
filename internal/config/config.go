package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Production ProductionConfig `mapstructure:"production"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig 存储驱动：postgres 或 memory
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN 返回 postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig Brokers 为空时不启用消息
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	OrdersTopic string   `mapstructure:"orders_topic"`
	EventsTopic string   `mapstructure:"events_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpire time.Duration `mapstructure:"access_token_expire"`
	Issuer            string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProductionConfig 生产调度参数
type ProductionConfig struct {
	SessionFailedPolicy string        `mapstructure:"session_failed_policy"`
	DefaultPriority     int           `mapstructure:"default_priority"`
	AlertInterval       time.Duration `mapstructure:"alert_interval"`
	AlertCooldown       time.Duration `mapstructure:"alert_cooldown"`
}

// NotifyConfig 告警通道。数据库中的告警设置优先，这里是首次启动时的初始值
type NotifyConfig struct {
	SlackWebhookURL   string        `mapstructure:"slack_webhook_url"`
	DiscordWebhookURL string        `mapstructure:"discord_webhook_url"`
	EmailEnabled      bool          `mapstructure:"email_enabled"`
	EmailTo           string        `mapstructure:"email_to"`
	SMTPHost          string        `mapstructure:"smtp_host"`
	SMTPPort          int           `mapstructure:"smtp_port"`
	SMTPUser          string        `mapstructure:"smtp_user"`
	SMTPPassword      string        `mapstructure:"smtp_password"`
	SMTPFrom          string        `mapstructure:"smtp_from"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在，使用环境变量
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// KAFKA_BROKERS 以逗号分隔
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.orders_topic", "orders.synced")
	v.SetDefault("kafka.events_topic", "production.events")
	v.SetDefault("kafka.group_id", "printops-production")

	v.SetDefault("minio.bucket", "printops-reports")

	v.SetDefault("jwt.access_token_expire", 24*time.Hour)
	v.SetDefault("jwt.issuer", "printops")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("production.session_failed_policy", "retry")
	v.SetDefault("production.default_priority", 3)
	v.SetDefault("production.alert_interval", 15*time.Minute)
	v.SetDefault("production.alert_cooldown", time.Hour)

	v.SetDefault("notify.smtp_port", 587)
	v.SetDefault("notify.timeout", 10*time.Second)
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	v.BindEnv("storage.driver", "STORAGE_DRIVER")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Kafka
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.orders_topic", "KAFKA_ORDERS_TOPIC")
	v.BindEnv("kafka.events_topic", "KAFKA_EVENTS_TOPIC")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Production
	v.BindEnv("production.session_failed_policy", "SESSION_FAILED_POLICY")
	v.BindEnv("production.alert_interval", "ALERT_INTERVAL")
	v.BindEnv("production.alert_cooldown", "ALERT_COOLDOWN")

	// Notify
	v.BindEnv("notify.slack_webhook_url", "SLACK_WEBHOOK_URL")
	v.BindEnv("notify.discord_webhook_url", "DISCORD_WEBHOOK_URL")
	v.BindEnv("notify.email_enabled", "ALERT_EMAIL_ENABLED")
	v.BindEnv("notify.email_to", "ALERT_EMAIL_TO")
	v.BindEnv("notify.smtp_host", "SMTP_HOST")
	v.BindEnv("notify.smtp_port", "SMTP_PORT")
	v.BindEnv("notify.smtp_user", "SMTP_USER")
	v.BindEnv("notify.smtp_password", "SMTP_PASSWORD")
	v.BindEnv("notify.smtp_from", "SMTP_FROM")
}

// GetEnvOrDefault 获取环境变量，如果不存在则返回默认值
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
