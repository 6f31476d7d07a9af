package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	defaultServerAddress = "localhost:8080"
	defaultConfigDir     = ".loanbook"
)

type Config struct {
	Env           string
	ServerAddress string
	EnableTLS     bool
	APIKey        string
	ConfigDir     string
	DBPath        string
	TokenPath     string
	LogFile       string
	HTTPTimeout   time.Duration
	ProbeInterval time.Duration
	Sync          SyncConfig
}

// SyncConfig параметры синхронизации
type SyncConfig struct {
	MaxRetries  int
	ItemTimeout time.Duration
	Interval    time.Duration
	Flex        time.Duration
	BackoffBase time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvLocal)
	v.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	v.SetDefault("ENABLE_TLS", false)
	v.SetDefault("CONFIG_DIR", defaultConfigDir)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("PROBE_INTERVAL_SECONDS", 10)
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_ITEM_TIMEOUT_SECONDS", 30)
	v.SetDefault("SYNC_INTERVAL_MINUTES", 15)
	v.SetDefault("SYNC_FLEX_MINUTES", 5)
	v.SetDefault("SYNC_BACKOFF_SECONDS", 30)
}

// Load читает конфигурацию из .env, окружения и переданного экземпляра viper
func Load(v *viper.Viper) (*Config, error) {
	// Определяем путь к .env файлу (относительно места запуска)
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	configDir := v.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		configDir = filepath.Join(homeDir, configDir)
	}

	// Создаем директорию если ее нет
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("ошибка создания директории конфигурации: %w", err)
	}

	cfg := &Config{
		Env:           v.GetString("APP_ENV"),
		ServerAddress: v.GetString("SERVER_ADDRESS"),
		EnableTLS:     v.GetBool("ENABLE_TLS"),
		APIKey:        v.GetString("API_KEY"),
		ConfigDir:     configDir,
		DBPath:        pathOr(v.GetString("DB_PATH"), filepath.Join(configDir, "loanbook.db")),
		TokenPath:     pathOr(v.GetString("TOKEN_PATH"), filepath.Join(configDir, "session.json")),
		LogFile:       v.GetString("LOG_FILE"),
		HTTPTimeout:   time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		ProbeInterval: time.Duration(v.GetInt("PROBE_INTERVAL_SECONDS")) * time.Second,
		Sync: SyncConfig{
			MaxRetries:  v.GetInt("SYNC_MAX_RETRIES"),
			ItemTimeout: time.Duration(v.GetInt("SYNC_ITEM_TIMEOUT_SECONDS")) * time.Second,
			Interval:    time.Duration(v.GetInt("SYNC_INTERVAL_MINUTES")) * time.Minute,
			Flex:        time.Duration(v.GetInt("SYNC_FLEX_MINUTES")) * time.Minute,
			BackoffBase: time.Duration(v.GetInt("SYNC_BACKOFF_SECONDS")) * time.Second,
		},
	}

	// Валидация конфигурации
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func pathOr(path, def string) string {
	if path == "" {
		return def
	}
	return path
}

func (c *Config) validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server_address не может быть пустым")
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync_max_retries должен быть не меньше 1")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync_interval_minutes должен быть положительным")
	}
	if c.Sync.Flex < 0 || c.Sync.Flex > c.Sync.Interval {
		return fmt.Errorf("sync_flex_minutes должен быть в пределах интервала")
	}
	return nil
}

// BaseURL адрес сервера со схемой
func (c *Config) BaseURL() string {
	scheme := "http://"
	if c.EnableTLS {
		scheme = "https://"
	}
	return scheme + c.ServerAddress
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

// IsDev проверяет, dev ли окружение
func (c *Config) IsDev() bool {
	return c.Env == EnvDev
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == EnvLocal || c.Env == ""
}
