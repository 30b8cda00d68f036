package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env:"LISTEN_BIND_IP" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env:"LISTEN_PORT" env-default:"8080"`
}

type Mongo struct {
	Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
	User     string `yaml:"user" env:"MONGO_USER" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"tapearn"`
	// ReplicaSet is required for transactions on a self-hosted deployment.
	ReplicaSet string `yaml:"replica_set" env:"MONGO_REPLICA_SET" env-default:""`
	Uri        string `yaml:"uri" env:"MONGO_URI" env-default:""`
}

type Telegram struct {
	Enabled     bool    `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
	ApiKey      string  `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	BotUsername string  `yaml:"bot_username" env:"TELEGRAM_BOT_USERNAME" env-default:""`
	WebAppUrl   string  `yaml:"web_app_url" env:"TELEGRAM_WEB_APP_URL" env-default:""`
	AdminIds    []int64 `yaml:"admin_ids" env:"TELEGRAM_ADMIN_IDS" env-separator:","`
	// AlertLevel is the lowest slog level forwarded to admins.
	AlertLevel     string        `yaml:"alert_level" env-default:"error"`
	DigestInterval time.Duration `yaml:"digest_interval" env-default:"5m"`
	InitDataMaxAge time.Duration `yaml:"init_data_max_age" env-default:"24h"`
}

type Referral struct {
	MaxTier       int           `yaml:"max_tier" env-default:"3"`
	ScanDepth     int           `yaml:"scan_depth" env-default:"32"`
	CodeLength    int           `yaml:"code_length" env-default:"8"`
	CodeAttempts  int           `yaml:"code_attempts" env-default:"10"`
	RetryAttempts int           `yaml:"retry_attempts" env-default:"3"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" env-default:"1s"`
}

type Monitor struct {
	Enabled  bool          `yaml:"enabled" env:"MONITOR_ENABLED" env-default:"true"`
	Interval time.Duration `yaml:"interval" env-default:"1h"`
}

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	Listen   Listen   `yaml:"listen"`
	Mongo    Mongo    `yaml:"mongo"`
	Telegram Telegram `yaml:"telegram"`
	Referral Referral `yaml:"referral"`
	Monitor  Monitor  `yaml:"monitor"`
}

var instance *Config
var once sync.Once

// MustLoad reads the YAML file at path; environment variables, including those
// from an optional .env file, override it.
func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		_ = godotenv.Load()
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
