package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg := Load()

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("Expected HTTP_ADDR default ':8080', got '%s'", cfg.HTTP.Addr)
	}

	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected DB_HOST default 'localhost', got '%s'", cfg.Database.Host)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("Expected DB_PORT default 5432, got %d", cfg.Database.Port)
	}

	if cfg.Database.Database != "taphouse" {
		t.Errorf("Expected DB_NAME default 'taphouse', got '%s'", cfg.Database.Database)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected REDIS_ADDR default 'localhost:6379', got '%s'", cfg.Redis.Addr)
	}

	if cfg.MQTT.Enabled {
		t.Error("Expected MQTT_ENABLED default false")
	}

	if cfg.Controllers.ProbeIntervalSec != 60 {
		t.Errorf("Expected probe interval default 60, got %d", cfg.Controllers.ProbeIntervalSec)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_PORT", "15432")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("MQTT_ENABLED", "true")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Clearenv()

	cfg := Load()

	if cfg.Database.Host != "test-host" {
		t.Errorf("Expected DB_HOST 'test-host', got '%s'", cfg.Database.Host)
	}

	if cfg.Database.Port != 15432 {
		t.Errorf("Expected DB_PORT 15432, got %d", cfg.Database.Port)
	}

	if cfg.Database.Database != "test-db" {
		t.Errorf("Expected DB_NAME 'test-db', got '%s'", cfg.Database.Database)
	}

	if !cfg.MQTT.Enabled {
		t.Error("Expected MQTT_ENABLED true")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected LOG_LEVEL 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "u",
		Password: "p",
		Database: "taphouse",
		SSLMode:  "disable",
	}

	want := "host=db port=5432 user=u password=p dbname=taphouse sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
