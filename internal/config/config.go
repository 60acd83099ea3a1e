package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config taphouse-backend (HTTP API) configuration
type Config struct {
	HTTP struct {
		Addr string
	}
	Database DatabaseConfig
	Redis    struct {
		Addr     string
		Password string
		DB       int
	}
	MQTT MQTTConfig
	Auth struct {
		// Staff credentials for POST /api/token. Single operator account.
		Username    string
		Password    string
		TokenSecret string
		TokenTTLMin int
	}
	Controllers struct {
		// Health prober polls each registered controller's /health.
		ProbeIntervalSec int
		PresenceTTLSec   int
	}
	Log struct {
		Level  string
		Format string
	}
}

// DatabaseConfig PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds a lib/pq DSN
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// MQTTConfig edge event publisher settings (disabled by default)
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Load reads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "taphouse")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "taphouse-backend")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "taproom")

	cfg.Auth.Username = getEnv("AUTH_USERNAME", "admin")
	cfg.Auth.Password = getEnv("AUTH_PASSWORD", "admin")
	cfg.Auth.TokenSecret = getEnv("AUTH_TOKEN_SECRET", "change-me")
	cfg.Auth.TokenTTLMin = parseInt(getEnv("AUTH_TOKEN_TTL_MIN", "720"), 720)

	cfg.Controllers.ProbeIntervalSec = parseInt(getEnv("CONTROLLER_PROBE_INTERVAL_SEC", "60"), 60)
	cfg.Controllers.PresenceTTLSec = parseInt(getEnv("CONTROLLER_PRESENCE_TTL_SEC", "180"), 180)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
