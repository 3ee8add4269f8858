package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string
	LogMode string
	LogFile string

	DBDriver     string
	DBHost       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBPort       string
	DBSQLitePath string

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	ZaloBridgeURL          string
	ZaloEventConcurrency   int
	SessionReconcileEvery  time.Duration
	SessionLoginConcurrent int

	CleanupInterval  time.Duration
	CleanupRetention time.Duration

	StorageBackend string
	UploadDir      string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string

	SocketJWTSecret string
	SendRateLimit   int
}

var (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageLocal = "local"
	StorageS3    = "s3"
)

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),
		LogMode: getEnv("LOG_MODE", "development"),
		LogFile: getEnv("LOG_FILE", ""),

		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "zalo_hub"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBSQLitePath: getEnv("DB_SQLITE_PATH", "zalo_hub.db"),

		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		ZaloBridgeURL:          getEnv("ZALO_BRIDGE_URL", "ws://localhost:3100/bridge"),
		ZaloEventConcurrency:   getEnvAsInt("ZALO_EVENT_CONCURRENCY", 16),
		SessionReconcileEvery:  getEnvAsDuration("SESSION_RECONCILE_INTERVAL", 15*time.Minute),
		SessionLoginConcurrent: getEnvAsInt("SESSION_LOGIN_CONCURRENCY", 4),

		CleanupInterval:  getEnvAsDuration("CLEANUP_INTERVAL", 24*time.Hour),
		CleanupRetention: getEnvAsDuration("CLEANUP_RETENTION", 7*24*time.Hour),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads/failed"),
		S3Region:       getEnv("S3_REGION", ""),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),

		SocketJWTSecret: getEnv("SOCKET_JWT_SECRET", ""),
		SendRateLimit:   getEnvAsInt("SEND_RATE_LIMIT", 30),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return fallback
}
