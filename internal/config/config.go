package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort           string
	AppEnv            string
	AWSRegion         string
	AWSEndpointURL    string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID    string
	AWSSecretKey      string
	DynamoTables      DynamoTables
	S3BucketName      string
	AssetPrefix       string // key prefix of the deployed static asset set
	AssetVersion      string
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration
	SNSRegion         string
	SNSTopicARN       string   // empty disables OS push fan-out
	AllowedOrigins    []string // CORS allowed origins
	SocketPath        string
	MutationRate      float64 // requests/second per IP on mutating endpoints
	MutationBurst     int
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Events string
}

// ClientConfig holds the defaults for the sync client (cmd/eventsync).
type ClientConfig struct {
	ServerURL         string
	ProfilePath       string
	CacheVersion      string
	NetworkTimeout    time.Duration
	ReconnectDelay    time.Duration
	ResyncOnReconnect bool
	NotificationCap   int
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Events: getEnv("DYNAMO_TABLE_EVENTS", "events"),
		},
		S3BucketName:      getEnv("S3_BUCKET_NAME", "events-app-assets"),
		AssetPrefix:       getEnv("ASSET_PREFIX", "shell/"),
		AssetVersion:      getEnv("ASSET_VERSION", "events-app-v1"),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:       getEnv("SNS_TOPIC_ARN", ""),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		SocketPath:        getEnv("SOCKET_PATH", "/api/socket"),
		MutationRate:      getEnvFloat("MUTATION_RATE", 5),
		MutationBurst:     getEnvInt("MUTATION_BURST", 10),
	}
}

// LoadClient reads the sync client defaults from environment variables.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		ServerURL:         getEnv("EVENTSYNC_SERVER_URL", "http://localhost:3000"),
		ProfilePath:       getEnv("EVENTSYNC_PROFILE", "eventsync.db"),
		CacheVersion:      getEnv("EVENTSYNC_CACHE_VERSION", "events-app-v1"),
		NetworkTimeout:    getEnvDuration("EVENTSYNC_NETWORK_TIMEOUT", 3*time.Second),
		ReconnectDelay:    getEnvDuration("EVENTSYNC_RECONNECT_DELAY", time.Second),
		ResyncOnReconnect: getEnvBool("EVENTSYNC_RESYNC_ON_RECONNECT", false),
		NotificationCap:   getEnvInt("EVENTSYNC_NOTIFICATION_CAP", 50),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
