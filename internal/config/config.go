// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         uint16 `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN returns a lib/pq connection URL.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// AMQPConfig enables the RabbitMQ continuation transport when URL is set.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Prefetch int    `mapstructure:"prefetch"`
}

type TelegramConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec int           `mapstructure:"rate_per_sec"`
}

type StorageConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type DownloadConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxBytes          int64         `mapstructure:"max_bytes"`
	DocumentThreshold int64         `mapstructure:"document_threshold"`
}

type DispatchConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size"`
	ParallelSends int           `mapstructure:"parallel_sends"`
	GroupPause    time.Duration `mapstructure:"group_pause"`
	LeaseTTL      time.Duration `mapstructure:"lease_ttl"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Download DownloadConfig `mapstructure:"download"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Log      LogConfig      `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.database", "broadcast")
	v.SetDefault("postgres.username", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.prefetch", 1)

	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "60s")
	v.SetDefault("telegram.rate_per_sec", 25)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "user-media")
	v.SetDefault("storage.public_base_url", "")

	v.SetDefault("download.timeout", "120s")
	v.SetDefault("download.max_bytes", 45*1024*1024)
	v.SetDefault("download.document_threshold", 10*1024*1024)

	v.SetDefault("dispatch.chunk_size", 50)
	v.SetDefault("dispatch.parallel_sends", 10)
	v.SetDefault("dispatch.group_pause", "100ms")
	v.SetDefault("dispatch.lease_ttl", "10m")
	v.SetDefault("dispatch.stale_after", "5m")
	v.SetDefault("dispatch.sweep_schedule", "@every 1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
}

// Load reads .env (if present), the optional config file and the environment.
// Environment keys are the upper-cased config path with dots replaced by
// underscores, e.g. DISPATCH_CHUNK_SIZE.
func Load(configFile string) (Config, error) {
	// Missing .env is fine, OS environment is used instead.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Dispatch.ChunkSize <= 0 {
		return errors.New("dispatch.chunk_size must be positive")
	}
	if c.Dispatch.ParallelSends <= 0 {
		return errors.New("dispatch.parallel_sends must be positive")
	}
	if c.Download.MaxBytes <= 0 {
		return errors.New("download.max_bytes must be positive")
	}
	if c.Download.DocumentThreshold > c.Download.MaxBytes {
		return errors.New("download.document_threshold must not exceed download.max_bytes")
	}
	return nil
}
