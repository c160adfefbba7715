package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Tessie 聚合 API
	TessieAPIHost     string
	TessieAccessToken string
	DefaultVIN        string

	// 分析参数
	NominalPackKWh float64 // 标称电池容量，耗电估算用

	// 响应缓存
	CacheTTL        time.Duration
	CacheMaxEntries int

	// 状态轮询
	PollInterval       time.Duration
	PollIntervalAsleep time.Duration

	// 响应体积上限（KB），超出截断
	MaxResponseKB int
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("PORT", "4000"),
		Debug:              getEnvBool("DEBUG", false),
		TessieAPIHost:      getEnv("TESSIE_API_HOST", "https://api.tessie.com"),
		TessieAccessToken:  getEnv("TESSIE_ACCESS_TOKEN", ""),
		DefaultVIN:         getEnv("DEFAULT_VIN", ""),
		NominalPackKWh:     getEnvFloat("NOMINAL_PACK_KWH", 75),
		CacheTTL:           getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheMaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 100),
		PollInterval:       getEnvDuration("POLL_INTERVAL", 30*time.Second),
		PollIntervalAsleep: getEnvDuration("POLL_INTERVAL_ASLEEP", 5*time.Minute),
		MaxResponseKB:      getEnvInt("MAX_RESPONSE_KB", 50),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
