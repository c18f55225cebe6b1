package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Redis
	RedisURL           string
	MatchEventsChannel string

	// Server
	Port        string
	FrontendURL string

	// Storage backends ("redis"/"memory" and "postgres"/"memory")
	QueueStore  string
	RatingStore string

	// Matchmaking
	MatchWindowBase   float64
	MatchWindowGrowth float64

	// Glicko-2
	GlickoTau           float64
	GlickoTolerance     float64
	GlickoMaxIterations int

	// Security
	JWTSecret    string
	AuthRequired bool
	// InternalToken guards service-to-service routes (result reporting,
	// recalculation). Empty leaves them open, for development only.
	InternalToken string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/playchess?sslmode=disable"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MatchEventsChannel: getEnv("MATCH_EVENTS_CHANNEL", "match_events"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Storage backends
		QueueStore:  getEnv("QUEUE_STORE", "redis"),
		RatingStore: getEnv("RATING_STORE", "postgres"),

		// Matchmaking
		MatchWindowBase:   getEnvFloat("MATCH_WINDOW_BASE", 50),
		MatchWindowGrowth: getEnvFloat("MATCH_WINDOW_GROWTH", 50),

		// Glicko-2
		GlickoTau:           getEnvFloat("GLICKO_TAU", 0.5),
		GlickoTolerance:     getEnvFloat("GLICKO_TOLERANCE", 1e-6),
		GlickoMaxIterations: getEnvInt("GLICKO_MAX_ITERATIONS", 100),

		// Security
		JWTSecret:    getEnv("JWT_SECRET", "change-me-in-production"),
		AuthRequired: getEnvBool("AUTH_REQUIRED", false),

		InternalToken: getEnv("INTERNAL_API_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
