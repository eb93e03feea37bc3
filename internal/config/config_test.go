package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.Service.HTTPPort)
	}
	if want := []string{"assemblyai", "google", "whisper"}; !reflect.DeepEqual(cfg.Providers.Priority, want) {
		t.Errorf("Priority = %v, want %v", cfg.Providers.Priority, want)
	}
	if cfg.Providers.MockOnly {
		t.Error("MockOnly = true by default, want false")
	}
	if cfg.Queue.Workers != 4 {
		t.Errorf("Queue.Workers = %d, want 4", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Errorf("Queue.MaxAttempts = %d, want 3", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.Retention != 24*time.Hour {
		t.Errorf("Queue.Retention = %s, want 24h", cfg.Queue.Retention)
	}
	if cfg.Kafka.Enabled {
		t.Error("Kafka.Enabled = true by default, want false")
	}
	if cfg.Session.BufferChunks != 64 {
		t.Errorf("Session.BufferChunks = %d, want 64", cfg.Session.BufferChunks)
	}
	if cfg.Upload.MaxBytes != 25*1024*1024 {
		t.Errorf("Upload.MaxBytes = %d, want 25MiB", cfg.Upload.MaxBytes)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("STT_PROVIDER_PRIORITY", "whisper, google")
	t.Setenv("STT_MOCK_ONLY", "true")
	t.Setenv("ASSEMBLYAI_API_KEY", "secret-key")
	t.Setenv("QUEUE_WORKERS", "8")
	t.Setenv("QUEUE_RETRY_BASE", "500ms")
	t.Setenv("QUEUE_RETRY_FACTOR", "1.5")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg := Load()

	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("HTTPPort = %q, want 9999", cfg.Service.HTTPPort)
	}
	if want := []string{"whisper", "google"}; !reflect.DeepEqual(cfg.Providers.Priority, want) {
		t.Errorf("Priority = %v, want %v (whitespace trimmed)", cfg.Providers.Priority, want)
	}
	if !cfg.Providers.MockOnly {
		t.Error("MockOnly = false, want true")
	}
	if cfg.Providers.AssemblyAI.APIKey != "secret-key" {
		t.Errorf("AssemblyAI.APIKey = %q", cfg.Providers.AssemblyAI.APIKey)
	}
	if cfg.Queue.Workers != 8 {
		t.Errorf("Queue.Workers = %d, want 8", cfg.Queue.Workers)
	}
	if cfg.Queue.RetryBase != 500*time.Millisecond {
		t.Errorf("Queue.RetryBase = %s, want 500ms", cfg.Queue.RetryBase)
	}
	if cfg.Queue.RetryFactor != 1.5 {
		t.Errorf("Queue.RetryFactor = %v, want 1.5", cfg.Queue.RetryFactor)
	}
	if !cfg.Kafka.Enabled {
		t.Error("Kafka.Enabled = false, want true")
	}
	if want := []string{"broker-1:9092", "broker-2:9092"}; !reflect.DeepEqual(cfg.Kafka.Brokers, want) {
		t.Errorf("Kafka.Brokers = %v, want %v", cfg.Kafka.Brokers, want)
	}
}

func TestEnvParsingFallsBackOnGarbage(t *testing.T) {
	t.Setenv("QUEUE_WORKERS", "many")
	t.Setenv("QUEUE_RETRY_BASE", "soon")
	t.Setenv("KAFKA_ENABLED", "yep")

	cfg := Load()

	if cfg.Queue.Workers != 4 {
		t.Errorf("Queue.Workers = %d, want default 4 for unparseable value", cfg.Queue.Workers)
	}
	if cfg.Queue.RetryBase != 2*time.Second {
		t.Errorf("Queue.RetryBase = %s, want default 2s", cfg.Queue.RetryBase)
	}
	if cfg.Kafka.Enabled {
		t.Error("Kafka.Enabled = true for unparseable value, want default false")
	}
}
