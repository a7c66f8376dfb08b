package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SPRAY_MODE", "STORE_SAMPLE_EVERY", "SPRAY_COOLDOWN", "MQTT_TOPIC_PREFIX"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.SprayMode != SprayLog {
		t.Errorf("SprayMode = %q, want log", cfg.SprayMode)
	}
	if cfg.SampleEvery != DefaultSampleEvery {
		t.Errorf("SampleEvery = %d, want %d", cfg.SampleEvery, DefaultSampleEvery)
	}
	if cfg.SprayCooldown != DefaultSprayCooldown {
		t.Errorf("SprayCooldown = %v, want %v", cfg.SprayCooldown, DefaultSprayCooldown)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SPRAY_MODE", "MQTT")
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("MQTT_TOPIC_PREFIX", "fleet/cab-7/")
	t.Setenv("SPRAY_COOLDOWN", "45s")
	t.Setenv("STORE_SAMPLE_EVERY", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != ":9000" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.SprayMode != SprayMQTT {
		t.Errorf("SprayMode = %q, want mqtt", cfg.SprayMode)
	}
	if cfg.MQTTTopicPrefix != "fleet/cab-7" {
		t.Errorf("MQTTTopicPrefix = %q, want trailing slash trimmed", cfg.MQTTTopicPrefix)
	}
	if cfg.SprayCooldown != 45*time.Second {
		t.Errorf("SprayCooldown = %v", cfg.SprayCooldown)
	}
	if cfg.SampleEvery != 10 {
		t.Errorf("SampleEvery = %d", cfg.SampleEvery)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Service
		wantErr bool
	}{
		{"log mode", Service{SprayMode: SprayLog, SampleEvery: 1}, false},
		{"http without gateway", Service{SprayMode: SprayHTTP, SampleEvery: 1}, true},
		{"http with gateway", Service{SprayMode: SprayHTTP, SprayGatewayURL: "http://gw", SampleEvery: 1}, false},
		{"mqtt without broker", Service{SprayMode: SprayMQTT, SampleEvery: 1}, true},
		{"unknown mode", Service{SprayMode: "bluetooth", SampleEvery: 1}, true},
		{"zero sample rate", Service{SprayMode: SprayLog}, true},
		{"negative cooldown", Service{SprayMode: SprayLog, SampleEvery: 1, SprayCooldown: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseURLForLog(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://fatigue:s3cret@db:5432/fatigue", "postgres://fatigue:***@db:5432/fatigue"},
		{"postgres://db:5432/fatigue", "postgres://db:5432/fatigue"},
		{"", ""},
	}

	for _, tt := range tests {
		c := Service{DatabaseURL: tt.in}
		if got := c.DatabaseURLForLog(); got != tt.want {
			t.Errorf("DatabaseURLForLog(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
