package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"driveguardian/go-backend/internal/detection"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	GRPCPort    string
	HTTPPort    string
	CORSOrigins string

	MaxMessageSizeMB int
	LogLevel         string
	LogFormat        string
	Environment      string

	StoreBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	CalibrationFrames int
	ThresholdRatio    float64
	WarningFrames     int
	AlarmFrame        int

	HistoryLimit   int
	PublishedLimit int
}

func (p *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog redacts the password.
func (p *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func (c *Config) DetectionParams() detection.Params {
	return detection.Params{
		CalibrationFrames: c.CalibrationFrames,
		ThresholdRatio:    c.ThresholdRatio,
		WarningFrames:     c.WarningFrames,
		AlarmFrame:        c.AlarmFrame,
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if err := c.DetectionParams().Validate(); err != nil {
		return err
	}
	if c.MaxMessageSizeMB <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE_MB must be positive, got %d", c.MaxMessageSizeMB)
	}
	return nil
}

func LoadConfig() *Config {
	// .env is optional; the system environment still applies
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	defaults := detection.DefaultParams()
	cfg := &Config{
		GRPCPort:          getEnv("GRPC_PORT", "50051"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		CORSOrigins:       getEnv("CORS_ORIGINS", "*"),
		MaxMessageSizeMB:  getEnvInt("MAX_MESSAGE_SIZE_MB", 50),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		Environment:       getEnv("ENVIRONMENT", "production"),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RedisPrefix:       getEnv("REDIS_PREFIX", "driveguardian:"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBName:            getEnv("DB_NAME", "driveguardian"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		MQTTBroker:        getEnv("MQTT_BROKER", ""),
		MQTTClientID:      getEnv("MQTT_CLIENT_ID", "driveguardian-backend"),
		MQTTUsername:      getEnv("MQTT_USERNAME", ""),
		MQTTPassword:      getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:   getEnv("MQTT_TOPIC_PREFIX", "driveguardian"),
		CalibrationFrames: getEnvInt("CALIBRATION_FRAMES", defaults.CalibrationFrames),
		ThresholdRatio:    getEnvFloat("THRESHOLD_RATIO", defaults.ThresholdRatio),
		WarningFrames:     getEnvInt("WARNING_FRAMES", defaults.WarningFrames),
		AlarmFrame:        getEnvInt("ALARM_FRAME", defaults.AlarmFrame),
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 100),
		PublishedLimit:    getEnvInt("PUBLISHED_LIMIT", 100),
	}

	if cfg.StoreBackend == BackendPostgres && cfg.DBPassword == "" {
		fmt.Println("WARNING: DB_PASSWORD is not set!")
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
