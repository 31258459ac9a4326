package logger

import (
	"io"
	"os"
	"strconv"
)

const defaultServiceName = "assetlens"

// EnvConfig holds logger configuration loaded from environment variables.
type EnvConfig struct {
	Level       string    // LOG_LEVEL: debug, info, warn, error
	Format      string    // LOG_FORMAT: json, text
	Output      io.Writer // overrides every other output setting when set
	ServiceName string    // SERVICE_NAME

	Environment string // APP_ENV: local, dev, prod

	LogFile     string // LOG_FILE
	LogFileOnly bool   // LOG_FILE_ONLY suppresses stdout outside local

	MaxSize    int  // LOG_MAX_SIZE in MB
	MaxBackups int  // LOG_MAX_BACKUPS
	MaxAge     int  // LOG_MAX_AGE in days
	Compress   bool // LOG_COMPRESS
}

// LoadFromEnv reads EnvConfig from the process environment.
func LoadFromEnv() *EnvConfig {
	return &EnvConfig{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: getEnv("SERVICE_NAME", defaultServiceName),
		Environment: getEnv("APP_ENV", "local"),

		LogFile:     getEnv("LOG_FILE", "/var/log/assetlens/app.log"),
		LogFileOnly: getEnvBool("LOG_FILE_ONLY", false),

		MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
		MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
		Compress:   getEnvBool("LOG_COMPRESS", true),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return i
}
