package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	AppName     = "telegram-budget-bot"
	EnvFileName = "config.env"
)

// Environment variables read at startup.
const (
	EnvBotToken = "BOT_TOKEN"
	EnvDBPath   = "BUDGET_DB_PATH"
	EnvKeyPass  = "BUDGET_TOKEN_KEY"
	EnvWebAddr  = "WEB_ADDR"
)

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// DBPath returns the SQLite database path, defaulting next to the config file.
func DBPath() string {
	if p := os.Getenv(EnvDBPath); p != "" {
		return p
	}
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "budget.db"
	}
	return filepath.Join(configBase, AppName, "budget.db")
}

// WebAddr returns the dashboard API listen address.
func WebAddr() string {
	if addr := os.Getenv(EnvWebAddr); addr != "" {
		return addr
	}
	return "127.0.0.1:8080"
}
