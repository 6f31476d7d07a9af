package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = "../../.env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env    string
	DB     db
	Server server
	Auth   auth
}

type db struct {
	DatabaseURI string `env:"DATABASE_URI"`
}

type server struct {
	RunAddress string `env:"RUN_ADDRESS"`
	APIKey     string `env:"API_KEY"`
}

type auth struct {
	SessionTTL time.Duration `env:"SESSION_TTL_HOURS"`
}

func MustLoad() *Config {
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Fatalf("Ошибка загрузки .env файла: %v", err)
		}
	}

	cfg := Load(viper.GetViper())
	if cfg.DB.DatabaseURI == "" {
		log.Fatalln("DATABASE_URI is required")
	}
	return cfg
}

func Load(v *viper.Viper) *Config {
	v.AutomaticEnv()
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("run_address", ":8080")
	v.SetDefault("session_ttl_hours", 24)

	return &Config{
		Env: v.GetString("app_env"),
		DB: db{
			DatabaseURI: v.GetString("database_uri"),
		},
		Server: server{
			RunAddress: v.GetString("run_address"),
			APIKey:     v.GetString("api_key"),
		},
		Auth: auth{
			SessionTTL: time.Duration(v.GetInt("session_ttl_hours")) * time.Hour,
		},
	}
}
