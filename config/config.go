package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration loaded from environment variables
type Config struct {
	Port      string
	Env       string
	Storage   string
	MongoURI  string
	DBName    string
	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisRelay    bool

	FirebaseProjectID         string
	FirebaseCredentialsBase64 string
	FirebaseCredentialsFile   string

	AllowedOrigins []string

	WSWriteTimeout time.Duration
	WSPingInterval time.Duration
}

// Storage backends for the notification log and preferences
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Load reads configuration from the environment and validates required fields
func Load() (Config, error) {
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse REDIS_DB: %w", err)
	}

	writeTimeout, err := getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse WS_WRITE_TIMEOUT: %w", err)
	}

	pingInterval, err := getEnvDuration("WS_PING_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse WS_PING_INTERVAL: %w", err)
	}

	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}

	cfg := Config{
		Port:                      getEnv("PORT", "8080"),
		Env:                       getEnv("ENV", "production"),
		Storage:                   getEnv("STORAGE", StorageMongo),
		MongoURI:                  mongoURI,
		DBName:                    getEnv("DB_NAME", "notifications"),
		JWTSecret:                 os.Getenv("JWT_SECRET"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   redisDB,
		RedisRelay:                getEnv("REDIS_RELAY", "false") == "true",
		FirebaseProjectID:         os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsBase64: os.Getenv("FIREBASE_CREDENTIALS_BASE64"),
		FirebaseCredentialsFile:   os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		AllowedOrigins:            splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		WSWriteTimeout:            writeTimeout,
		WSPingInterval:            pingInterval,
	}

	// Only fall back to the compose service name in development
	if cfg.MongoURI == "" && (cfg.Env == "development" || cfg.Env == "dev") {
		cfg.MongoURI = "mongodb://mongodb:27017"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Storage {
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI or MONGODB_URI is required for production")
		}
	case StorageMemory:
		if c.Env == "production" {
			return fmt.Errorf("STORAGE=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.WSWriteTimeout <= 0 {
		return fmt.Errorf("WS_WRITE_TIMEOUT must be positive")
	}
	if c.WSPingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be positive")
	}
	return nil
}

// FirebaseEnabled reports whether any Firebase credentials were supplied
func (c Config) FirebaseEnabled() bool {
	return c.FirebaseCredentialsBase64 != "" || c.FirebaseCredentialsFile != ""
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
