package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"ad-chat-be/pkg/ads/catalog"
	"ad-chat-be/pkg/ads/schedule"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Ai       AIConfig
	Ads      AdsConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	TurnLockTTL        time.Duration
}

type DatabaseConfig struct {
	Connection string
}

type AuthConfig struct {
	JwtSecret  string
	SessionTTL time.Duration
}

type AIConfig struct {
	LLMProvider   string // "ollama", "openai" or "groq"
	LLMModel      string
	LLMBaseURL    string
	LLMApiKey     string
	OllamaBaseURL string
}

type AdsConfig struct {
	Schedule            schedule.Config
	CatalogPath         string
	NoMatchFallback     catalog.NoMatchFallback
	CategorySampleLimit int
}

type OtelConfig struct {
	Enabled     bool
	ServiceName string
}

// Load reads .env and the environment. Invalid ad settings are returned as an
// error so the process can refuse to start.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	ads, err := loadAds()
	if err != nil {
		return nil, err
	}

	// Session tokens are HMAC-signed with this key.
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", ""),
			TurnLockTTL:        getEnvAsDuration("TURN_LOCK_TTL", 5*time.Minute),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JwtSecret:  jwtSecret,
			SessionTTL: getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:    getEnv("LLM_BASE_URL", ""),
			LLMApiKey:     getEnv("LLM_API_KEY", ""),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		Ads: *ads,
		Otel: OtelConfig{
			Enabled:     getEnv("OTEL_ENABLED", "false") == "true",
			ServiceName: getEnv("OTEL_SERVICE_NAME", "ad-chat-be"),
		},
	}, nil
}

func loadAds() (*AdsConfig, error) {
	modes, err := schedule.ParseList(getEnv("AD_MODE_SCHEDULE", joinModes(schedule.DefaultSchedule)))
	if err != nil {
		return nil, fmt.Errorf("AD_MODE_SCHEDULE: %w", err)
	}

	var override *schedule.Mode
	if raw := getEnv("AD_MODE_OVERRIDE", ""); raw != "" {
		mode, err := schedule.ParseMode(raw)
		if err != nil {
			return nil, fmt.Errorf("AD_MODE_OVERRIDE: %w", err)
		}
		override = &mode
	}

	cfg := schedule.Config{Schedule: modes, Override: override}
	if _, err := schedule.NewScheduler(cfg); err != nil {
		return nil, fmt.Errorf("ad schedule: %w", err)
	}

	fallback, err := catalog.ParseFallback(getEnv("AD_NO_MATCH_FALLBACK", string(catalog.FallbackRandom)))
	if err != nil {
		return nil, fmt.Errorf("AD_NO_MATCH_FALLBACK: %w", err)
	}

	return &AdsConfig{
		Schedule:            cfg,
		CatalogPath:         getEnv("AD_CATALOG_PATH", "data/products.json"),
		NoMatchFallback:     fallback,
		CategorySampleLimit: getEnvAsInt("AD_CATEGORY_SAMPLE_LIMIT", 100),
	}, nil
}

func joinModes(modes []schedule.Mode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.String()
	}
	return strings.Join(names, ",")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil && value > 0 {
		return value
	}
	return fallback
}
