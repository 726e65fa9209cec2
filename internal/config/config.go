package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"profilebus/internal/events"
)

// DefaultPath is read when Load is given an empty path. A missing file at
// the default path is not an error.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Redis         RedisConfig         `yaml:"redis"`
	Database      DatabaseConfig      `yaml:"database"`
	Backup        BackupConfig        `yaml:"backup"`
	Subscriber    SubscriberConfig    `yaml:"subscriber"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	Demo          DemoConfig          `yaml:"demo"`
}

type RedisConfig struct {
	Host        string        `yaml:"host" env:"REDIS_HOST"`
	Port        int           `yaml:"port" env:"REDIS_PORT"`
	DB          int           `yaml:"db" env:"REDIS_DB"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"PROFILES_DB_PATH"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled" env:"BACKUP_ENABLED"`
	Interval      time.Duration `yaml:"interval" env:"BACKUP_INTERVAL"`
	StoragePath   string        `yaml:"storage_path" env:"BACKUP_PATH"`
	RetentionDays int           `yaml:"retention_days" env:"BACKUP_RETENTION_DAYS"`
}

type SubscriberConfig struct {
	StopTimeout  time.Duration `yaml:"stop_timeout" env:"SUBSCRIBER_STOP_TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"SUBSCRIBER_POLL_INTERVAL"`
	RetryDelay   time.Duration `yaml:"retry_delay" env:"SUBSCRIBER_RETRY_DELAY"`
	MaxInFlight  int           `yaml:"max_in_flight" env:"SUBSCRIBER_MAX_IN_FLIGHT"`
}

type NotificationsConfig struct {
	MaxOpen       int            `yaml:"max_open" env:"NOTIFY_MAX_OPEN"`
	Timeout       time.Duration  `yaml:"timeout" env:"NOTIFY_TIMEOUT"`
	RatePerSecond float64        `yaml:"rate_per_second" env:"NOTIFY_RATE"`
	Burst         int            `yaml:"burst" env:"NOTIFY_BURST"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	Debug    bool   `yaml:"debug" env:"TELEGRAM_DEBUG"`
}

// Enabled reports whether Telegram delivery is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.BotToken != "YOUR_BOT_TOKEN_HERE" && t.ChatID != 0
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port" env:"HEALTH_PORT"`
	PrometheusEnabled bool `yaml:"prometheus_enabled" env:"PROMETHEUS_ENABLED"`
	PrometheusPort    int  `yaml:"prometheus_port" env:"PROMETHEUS_PORT"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

type DemoConfig struct {
	Delay time.Duration `yaml:"delay" env:"DEMO_DELAY"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DialTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{Path: "data/profiles.db"},
		Backup: BackupConfig{
			Interval:      24 * time.Hour,
			StoragePath:   "data/backups",
			RetentionDays: 7,
		},
		Subscriber: SubscriberConfig{
			StopTimeout:  5 * time.Second,
			PollInterval: time.Second,
			RetryDelay:   time.Second,
		},
		Notifications: NotificationsConfig{
			MaxOpen:       3,
			Timeout:       10 * time.Second,
			RatePerSecond: 5,
			Burst:         5,
		},
		Monitoring: MonitoringConfig{
			HealthCheckPort:   8090,
			PrometheusEnabled: true,
			PrometheusPort:    9090,
		},
		Logging: LoggingConfig{Level: "info", Pretty: true},
		Demo:    DemoConfig{Delay: time.Second},
	}
}

// Load builds the configuration from defaults, the YAML file at path (with
// ${VAR} placeholders expanded), a .env file in the working directory and
// finally the process environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv sets variables from file without overriding ones already in
// the environment.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port %d out of range", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must not be negative"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Subscriber.MaxInFlight < 0 {
		errs = append(errs, errors.New("subscriber.max_in_flight must not be negative"))
	}
	if c.Notifications.MaxOpen <= 0 {
		errs = append(errs, errors.New("notifications.max_open must be positive"))
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		errs = append(errs, errors.New("backup.storage_path is required when backups are enabled"))
	}
	return errors.Join(errs...)
}

// ConnOptions returns the broker address for the event bus.
func (r RedisConfig) ConnOptions() events.ConnOptions {
	return events.ConnOptions{
		Host:        r.Host,
		Port:        r.Port,
		DB:          r.DB,
		Password:    r.Password,
		DialTimeout: r.DialTimeout,
	}
}

// Options returns the subscriber tuning.
func (s SubscriberConfig) Options() events.SubscriberOptions {
	return events.SubscriberOptions{
		StopTimeout:  s.StopTimeout,
		PollInterval: s.PollInterval,
		RetryDelay:   s.RetryDelay,
		MaxInFlight:  s.MaxInFlight,
	}
}
