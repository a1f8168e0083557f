package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"
)

type Config struct {
	ServerPort      string
	Environment     string
	FirebaseProject string

	// Service account credentials: inline JSON wins over the file path.
	FirebaseCredentialsJSON string
	FirebaseCredentialsPath string

	StoreDriver     string
	RedisURL        string
	ProfileCacheTTL time.Duration

	// Per-user token bucket sizes, refilled over one minute (send) and one hour (create).
	SendMessageRate int
	CreateRoomRate  int

	// Origins allowed to open a WebSocket; empty allows any.
	AllowedOrigins []string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		Environment:             getEnv("ENVIRONMENT", "development"),
		FirebaseProject:         getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StoreDriver:             strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFirestore)),
		RedisURL:                getEnv("REDIS_URL", ""),
		ProfileCacheTTL:         getEnvAsDuration("PROFILE_CACHE_TTL", 10*time.Minute),
		SendMessageRate:         getEnvAsInt("SEND_MESSAGE_RATE", 30),
		CreateRoomRate:          getEnvAsInt("CREATE_ROOM_RATE", 20),
		AllowedOrigins:          getEnvAsList("WS_ALLOWED_ORIGINS"),
	}

	switch config.StoreDriver {
	case StoreDriverFirestore:
		if config.FirebaseProject == "" {
			return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required when STORE_DRIVER=%s", StoreDriverFirestore)
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %s", config.StoreDriver)
	}

	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
