package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env denotes settings taken from the environment (and an optional .env file)
type Env struct {
	ConfigPath string
	Debug      bool
	APIAddr    string
}

// LoadEnv loads the .env file (if it exists) and reads the environment
func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		ConfigPath: getEnv("LIBRA_CONFIG", "libra.yaml"),
		Debug:      getEnvBool("LIBRA_DEBUG", false),
		APIAddr:    getEnv("LIBRA_API_ADDR", ""),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}
