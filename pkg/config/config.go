package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Project  string         `mapstructure:"project"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Sinks    SinksConfig    `mapstructure:"sinks"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`

	// Secret is the shared secret the streams provider signs payloads with
	Secret string `mapstructure:"secret"`

	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DedupConfig struct {
	// Backend: memory, redis, or postgres
	Backend string `mapstructure:"backend"`

	// Retention bounds how long seen hashes are kept. Redelivery beyond
	// the window counts as a new event.
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type PostgresConfig struct {
	URL         string `mapstructure:"url"`
	TablePrefix string `mapstructure:"table_prefix"`
}

type DispatchConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

type SinksConfig struct {
	Console  ConsoleSinkConfig  `mapstructure:"console"`
	File     FileSinkConfig     `mapstructure:"file"`
	Slack    SlackSinkConfig    `mapstructure:"slack"`
	Social   SocialSinkConfig   `mapstructure:"social"`
	Email    EmailSinkConfig    `mapstructure:"email"`
	Forward  ForwardSinkConfig  `mapstructure:"forward"`
	Redis    RedisSinkConfig    `mapstructure:"redis"`
	Kafka    KafkaSinkConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQSinkConfig `mapstructure:"rabbitmq"`
}

type ConsoleSinkConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type FileSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type SlackSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	HookURL string `mapstructure:"hook_url"`
}

type SocialSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
	Token   string `mapstructure:"token"`
}

type EmailSinkConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"` // host:port
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type ForwardSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

type RedisSinkConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Mode     string `mapstructure:"mode"` // list, pubsub
}

type KafkaSinkConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type RabbitMQSinkConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	QueueName  string `mapstructure:"queue_name"`
	Durable    bool   `mapstructure:"durable"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Dedup.Backend == "" {
		cfg.Dedup.Backend = "memory"
	}
	if cfg.Dedup.Retention == 0 {
		cfg.Dedup.Retention = 24 * time.Hour
	}
	if cfg.Dedup.SweepInterval == 0 {
		cfg.Dedup.SweepInterval = time.Hour
	}

	if cfg.Server.Secret == "" {
		return nil, fmt.Errorf("server.secret is required")
	}

	return &cfg, nil
}
