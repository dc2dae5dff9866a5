package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv             string
	AppName            string
	APIPrefix          string
	AppPort            string
	JWTSecret          string
	JWTAlgorithm       string
	CORSAllowOrigins   []string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAIJSONMode     bool
	AITimeoutSeconds   int
	ResolveTimeoutSecs int
	MaxRedirects       int
	MaxUploadBytes     int64
}

func Load() Config {
	_ = godotenv.Load(".env")

	return Config{
		AppEnv:       getEnv("APP_ENV", "local"),
		AppName:      getEnv("APP_NAME", "Ramblin Returns API"),
		APIPrefix:    getEnv("API_PREFIX", "/api/v1"),
		AppPort:      getEnv("APP_PORT", "8000"),
		JWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
		JWTAlgorithm: getEnv("AUTH_JWT_ALGORITHM", "HS256"),
		CORSAllowOrigins: getEnvCSV(
			"CORS_ALLOW_ORIGINS",
			[]string{"http://localhost:3000", "http://127.0.0.1:3000"},
		),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini-2024-07-18"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIJSONMode:     getEnvBool("OPENAI_JSON_MODE", true),
		AITimeoutSeconds:   getEnvInt("AI_TIMEOUT_SECONDS", 60),
		ResolveTimeoutSecs: getEnvInt("URL_RESOLVE_TIMEOUT_SECONDS", 10),
		MaxRedirects:       getEnvInt("URL_RESOLVE_MAX_REDIRECTS", 10),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.AppPort) == "" {
		return errors.New("APP_PORT is required")
	}
	if strings.TrimSpace(c.APIPrefix) == "" || !strings.HasPrefix(c.APIPrefix, "/") {
		return errors.New("API_PREFIX must start with /")
	}
	secret := strings.TrimSpace(c.JWTSecret)
	if secret != "" {
		if secret == "change-me-in-production" {
			return errors.New("AUTH_JWT_SECRET must not use insecure default value")
		}
		if len(secret) < 16 {
			return errors.New("AUTH_JWT_SECRET is too short; use at least 16 characters")
		}
		if strings.TrimSpace(c.JWTAlgorithm) == "" {
			return errors.New("AUTH_JWT_ALGORITHM is required when AUTH_JWT_SECRET is set")
		}
	}
	if c.AITimeoutSeconds <= 0 {
		return errors.New("AI_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// AuthEnabled reports whether bearer-token auth is configured. The API runs
// open when no secret is set, which is the expected mode for local dev.
func (c Config) AuthEnabled() bool {
	return strings.TrimSpace(c.JWTSecret) != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvCSV(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, item := range parts {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
