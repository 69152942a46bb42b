package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.ServiceName != "whatsapp-control-plane" {
		t.Errorf("ServiceName = %q, want default", cfg.ServiceName)
	}
	if cfg.NotifyBackend != NotifyNone {
		t.Errorf("NotifyBackend = %q, want none", cfg.NotifyBackend)
	}
	if cfg.NotifyKafkaTopic != "whatsapp-sessions" {
		t.Errorf("NotifyKafkaTopic = %q, want whatsapp-sessions", cfg.NotifyKafkaTopic)
	}
	if cfg.QRMaxRetries != 3 {
		t.Errorf("QRMaxRetries = %d, want 3", cfg.QRMaxRetries)
	}
	if cfg.StartupConcurrency != 4 {
		t.Errorf("StartupConcurrency = %d, want 4", cfg.StartupConcurrency)
	}
	if got := cfg.ReconnectBaseDelay(); got != 1200*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v, want 1.2s", got)
	}
	if got := cfg.ReconnectCapDelay(); got != 15*time.Second {
		t.Errorf("ReconnectCapDelay = %v, want 15s", got)
	}
	if got := cfg.ReconnectJitterMax(); got != 800*time.Millisecond {
		t.Errorf("ReconnectJitterMax = %v, want 800ms", got)
	}
	if got := cfg.ReconnectCooldownPeriod(); got != 2*time.Second {
		t.Errorf("ReconnectCooldownPeriod = %v, want 2s", got)
	}
	if got := cfg.LeaseStaleAfterDuration(); got != 20*time.Second {
		t.Errorf("LeaseStaleAfterDuration = %v, want 20s", got)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment should be false by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("APP_ENV", "Development")
	os.Setenv("QR_MAX_RETRIES", "5")
	os.Setenv("RECONNECT_BASE", "500ms")
	os.Setenv("WA_BRIDGE_URL", "http://bridge:7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment should be true")
	}
	if cfg.QRMaxRetries != 5 {
		t.Errorf("QRMaxRetries = %d, want 5", cfg.QRMaxRetries)
	}
	if got := cfg.ReconnectBaseDelay(); got != 500*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v, want 500ms", got)
	}
	if cfg.BridgeURL != "http://bridge:7070" {
		t.Errorf("BridgeURL = %q", cfg.BridgeURL)
	}
}

func TestLoad_NotifyBackend(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		want string
		err  bool
	}{
		{"empty is none", map[string]string{"NOTIFY_BACKEND": ""}, NotifyNone, false},
		{"kafka", map[string]string{"NOTIFY_BACKEND": "Kafka", "KAFKA_BROKERS": "k1:9092"}, NotifyKafka, false},
		{"kafka without brokers", map[string]string{"NOTIFY_BACKEND": "kafka"}, "", true},
		{"redis", map[string]string{"NOTIFY_BACKEND": "redis", "REDIS_URL": "redis://localhost:6379/0"}, NotifyRedis, false},
		{"redis without url", map[string]string{"NOTIFY_BACKEND": "redis"}, "", true},
		{"unknown", map[string]string{"NOTIFY_BACKEND": "pusher"}, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.env {
				os.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				if cfg != nil {
					t.Error("Load should return nil config on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.NotifyBackend != tc.want {
				t.Errorf("NotifyBackend = %q, want %q", cfg.NotifyBackend, tc.want)
			}
		})
	}
}

func TestLoad_NegativeTunables(t *testing.T) {
	for _, key := range []string{"QR_MAX_RETRIES", "STARTUP_CONCURRENCY"} {
		t.Run(key, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(key, "-1")
			if _, err := Load(); err == nil {
				t.Fatalf("Load should reject negative %s", key)
			}
		})
	}
}

func TestDurations_InvalidFallBack(t *testing.T) {
	cfg := &Config{
		ReconnectBase:     "soon",
		ReconnectCap:      "-5s",
		ReconnectJitter:   "garbage",
		ReconnectCooldown: "-1s",
		LeaseStaleAfter:   "0",
	}
	if got := cfg.ReconnectBaseDelay(); got != 1200*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v, want default", got)
	}
	if got := cfg.ReconnectCapDelay(); got != 15*time.Second {
		t.Errorf("ReconnectCapDelay = %v, want default", got)
	}
	if got := cfg.ReconnectJitterMax(); got != 800*time.Millisecond {
		t.Errorf("ReconnectJitterMax = %v, want default", got)
	}
	if got := cfg.ReconnectCooldownPeriod(); got != 2*time.Second {
		t.Errorf("ReconnectCooldownPeriod = %v, want default", got)
	}
	if got := cfg.LeaseStaleAfterDuration(); got != 20*time.Second {
		t.Errorf("LeaseStaleAfterDuration = %v, want default", got)
	}
}

func TestDurations_ZeroDisablesJitterAndCooldown(t *testing.T) {
	cfg := &Config{ReconnectJitter: "0", ReconnectCooldown: "0s"}
	if got := cfg.ReconnectJitterMax(); got >= 0 {
		t.Errorf("ReconnectJitterMax = %v, want negative (disabled)", got)
	}
	if got := cfg.ReconnectCooldownPeriod(); got >= 0 {
		t.Errorf("ReconnectCooldownPeriod = %v, want negative (disabled)", got)
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: " k1:9092, ,k2:9092 "}
	want := []string{"k1:9092", "k2:9092"}
	if got := cfg.KafkaBrokersList(); !reflect.DeepEqual(got, want) {
		t.Errorf("KafkaBrokersList = %v, want %v", got, want)
	}
	var nilCfg *Config
	if got := nilCfg.KafkaBrokersList(); got != nil {
		t.Errorf("nil config KafkaBrokersList = %v, want nil", got)
	}
}
