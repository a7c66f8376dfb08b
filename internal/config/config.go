// Package config provides service configuration for go-fatigue commands.
// Values come from the process environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort            = "8090"
	DefaultLogLevel        = "info"
	DefaultMQTTClientID    = "go-fatigue"
	DefaultMQTTTopicPrefix = "fatigue"
	DefaultSampleEvery     = 30
	DefaultSprayMode       = "log"
	DefaultSprayCooldown   = 30 * time.Second
)

// Spray modes.
const (
	SprayLog  = "log"
	SprayHTTP = "http"
	SprayMQTT = "mqtt"
)

// Service holds the environment-driven settings of cmd/fatigued.
// Empty optional values disable the matching component.
type Service struct {
	Port     string
	LogLevel string
	Env      string

	ThresholdsFile string // YAML overlay on fatigue.DefaultConfig
	Preset         string // default, sensitive, relaxed

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	DatabaseURL string
	SampleEvery int // persist every Nth frame besides level changes

	SprayMode       string
	SprayGatewayURL string
	SprayCooldown   time.Duration

	UplinkURL      string
	YuNetModelPath string
}

// Load reads .env (if present) and then the environment.
func Load() (*Service, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg := &Service{
		Port:            getEnv("PORT", DefaultPort),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		Env:             getEnv("GO_ENV", "development"),
		ThresholdsFile:  os.Getenv("FATIGUE_THRESHOLDS_FILE"),
		Preset:          getEnv("FATIGUE_PRESET", "default"),
		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", DefaultMQTTClientID),
		MQTTTopicPrefix: strings.TrimSuffix(getEnv("MQTT_TOPIC_PREFIX", DefaultMQTTTopicPrefix), "/"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SampleEvery:     getEnvInt("STORE_SAMPLE_EVERY", DefaultSampleEvery),
		SprayMode:       strings.ToLower(getEnv("SPRAY_MODE", DefaultSprayMode)),
		SprayGatewayURL: os.Getenv("SPRAY_GATEWAY_URL"),
		SprayCooldown:   getEnvDuration("SPRAY_COOLDOWN", DefaultSprayCooldown),
		UplinkURL:       os.Getenv("UPLINK_URL"),
		YuNetModelPath:  os.Getenv("YUNET_MODEL_PATH"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations that cannot work at runtime.
func (c *Service) Validate() error {
	switch c.SprayMode {
	case SprayLog:
	case SprayHTTP:
		if c.SprayGatewayURL == "" {
			return fmt.Errorf("SPRAY_MODE=http requires SPRAY_GATEWAY_URL")
		}
	case SprayMQTT:
		if c.MQTTBroker == "" {
			return fmt.Errorf("SPRAY_MODE=mqtt requires MQTT_BROKER")
		}
	default:
		return fmt.Errorf("unknown SPRAY_MODE %q (want log, http or mqtt)", c.SprayMode)
	}
	if c.SampleEvery < 1 {
		return fmt.Errorf("STORE_SAMPLE_EVERY must be >= 1, got %d", c.SampleEvery)
	}
	if c.SprayCooldown < 0 {
		return fmt.Errorf("SPRAY_COOLDOWN must not be negative, got %v", c.SprayCooldown)
	}
	return nil
}

// IsProduction reports whether GO_ENV=production.
func (c *Service) IsProduction() bool {
	return c.Env == "production"
}

// Addr returns the listen address for the HTTP server.
func (c *Service) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// DatabaseURLForLog hides the password part of DATABASE_URL.
func (c *Service) DatabaseURLForLog() string {
	return redactURL(c.DatabaseURL)
}

func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || scheme+3 > at {
		return raw
	}
	creds := raw[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return raw[:scheme+3] + creds + raw[at:]
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
