package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-based settings
type Config struct {
	Environment    string
	ServerAddress  string
	PublicURL      string
	DatabaseURL    string
	MigrationsPath string
	LogLevel       string

	JWTSecret            string
	OperatorEmail        string
	OperatorPasswordHash string

	RedisAddress  string
	RedisUsername string
	RedisPassword string

	MQTTBrokerURL string

	SyncDebounce time.Duration

	UploadDir       string
	UseSpaces       bool
	SpacesEndpoint  string
	SpacesRegion    string
	SpacesBucket    string
	SpacesCDNURL    string
	SpacesAccessKey string
	SpacesSecretKey string
}

// Load reads configuration from environment variables, seeding them from a
// .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	jwt := os.Getenv("JWT_SECRET")
	if jwt == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	debounce := 7 * time.Second
	if raw := os.Getenv("SYNC_DEBOUNCE"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("SYNC_DEBOUNCE: %w", err)
		}
		debounce = d
	}

	return &Config{
		Environment:    getEnv("APP_ENV", "production"),
		ServerAddress:  getEnv("SERVER_ADDRESS", ":8080"),
		PublicURL:      os.Getenv("PUBLIC_URL"),
		DatabaseURL:    dbURL,
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		JWTSecret:            jwt,
		OperatorEmail:        os.Getenv("OPERATOR_EMAIL"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),

		SyncDebounce: debounce,

		UploadDir:       getEnv("UPLOAD_DIR", "./uploads"),
		UseSpaces:       os.Getenv("USE_SPACES") == "true",
		SpacesEndpoint:  os.Getenv("SPACES_ENDPOINT"),
		SpacesRegion:    os.Getenv("SPACES_REGION"),
		SpacesBucket:    os.Getenv("SPACES_BUCKET"),
		SpacesCDNURL:    os.Getenv("SPACES_CDN_URL"),
		SpacesAccessKey: os.Getenv("SPACES_ACCESS_KEY"),
		SpacesSecretKey: os.Getenv("SPACES_SECRET_KEY"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
