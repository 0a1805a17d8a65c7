package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	JWT       JWTConfig      `mapstructure:"jwt"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Worker    WorkerConfig   `mapstructure:"worker"`
	Email     EmailConfig    `mapstructure:"email"`
	RateLimit struct {
		Enabled           bool    `mapstructure:"enabled"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
	Monitoring struct {
		PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
		MetricsPath       string `mapstructure:"metrics_path"`
	} `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type JWTConfig struct {
	Secret  string        `mapstructure:"secret"`
	Expiry  time.Duration `mapstructure:"expiry"`
	Issuer  string        `mapstructure:"issuer"`
	Enabled bool          `mapstructure:"enabled"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type WorkerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// envOverrides are the settings that may not live in the config file.
// Secrets come in through TRIALDATA_* environment variables.
type envOverrides struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	RedisURL         string `envconfig:"REDIS_URL"`
	EmailPassword    string `envconfig:"EMAIL_PASSWORD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("TRIALDATA", &env); err != nil {
		return nil, fmt.Errorf("failed to read env overrides: %w", err)
	}
	if env.DatabasePassword != "" {
		config.Database.Password = env.DatabasePassword
	}
	if env.JWTSecret != "" {
		config.JWT.Secret = env.JWTSecret
	}
	if env.RedisURL != "" {
		config.Redis.URL = env.RedisURL
	}
	if env.EmailPassword != "" {
		config.Email.Password = env.EmailPassword
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 15 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Worker.PollInterval == 0 {
		config.Worker.PollInterval = 5 * time.Second
	}
	if config.Worker.RetryAttempts == 0 {
		config.Worker.RetryAttempts = 3
	}
	if config.Worker.RetryDelay == 0 {
		config.Worker.RetryDelay = 2 * time.Second
	}
	if config.JWT.Expiry == 0 {
		config.JWT.Expiry = 12 * time.Hour
	}
	if config.Monitoring.MetricsPath == "" {
		config.Monitoring.MetricsPath = "/metrics"
	}
}
