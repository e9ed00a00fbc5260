package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GatewayURL      string
	CredentialsPath string
	RequestTimeout  time.Duration
	RateRPS         float64
	RateBurst       int
	LogLevel        string
}

// Load reads .env if present, then the environment, falling back to defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		GatewayURL:      env("GATEWAY_URL", "http://localhost:8000"),
		CredentialsPath: env("CREDENTIALS_PATH", defaultCredentialsPath()),
		RequestTimeout:  envDuration("REQUEST_TIMEOUT", 15*time.Second),
		RateRPS:         envFloat("RATE_RPS", 5),
		RateBurst:       envInt("RATE_BURST", 10),
		LogLevel:        env("LOG_LEVEL", "info"),
	}
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "healthcare-credentials.db"
	}
	return filepath.Join(dir, "healthcare-coordination", "credentials.db")
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
