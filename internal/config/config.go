// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServiceConfig holds service identity and ports.
type ServiceConfig struct {
	Principal         string
	HTTPPort          string
	ObservabilityPort string
}

// AssemblyAIConfig configures the remote-queue-and-poll provider.
type AssemblyAIConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// GoogleConfig configures the native duplex provider.
type GoogleConfig struct {
	Enabled      bool
	LanguageCode string
	SampleRateHz int
}

// WhisperConfig configures the file-handle-only provider.
type WhisperConfig struct {
	Endpoint string
	Model    string
	TempDir  string
	Timeout  time.Duration
}

// ProvidersConfig holds all provider configuration plus the priority order.
type ProvidersConfig struct {
	Priority   []string
	MockOnly   bool
	AssemblyAI AssemblyAIConfig
	Google     GoogleConfig
	Whisper    WhisperConfig
}

// SafetyConfig configures the external crisis filter endpoint. Empty URL
// means the local phrase filter performs the central scan.
type SafetyConfig struct {
	FilterURL     string
	FilterTimeout time.Duration
}

// QueueConfig tunes the job queue.
type QueueConfig struct {
	Workers       int
	PollInterval  time.Duration
	RetryBase     time.Duration
	RetryFactor   float64
	RetryCap      time.Duration
	MaxAttempts   int
	Retention     time.Duration
	SweepInterval time.Duration
}

// KafkaConfig configures the observability sink.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	TopicJobs string
	TopicBias string
	Principal string
}

// PostgresConfig configures the durable job store. Empty DSN means in-memory.
type PostgresConfig struct {
	DSN string
}

// UploadConfig tunes recording intake.
type UploadConfig struct {
	Dir           string
	MaxBytes      int64
	SigningSecret string
	BaseURL       string
}

// SessionConfig tunes streaming sessions.
type SessionConfig struct {
	BufferChunks int
}

// ObservabilityConfig tunes logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Config is the root configuration.
type Config struct {
	Service       ServiceConfig
	Providers     ProvidersConfig
	Safety        SafetyConfig
	Queue         QueueConfig
	Kafka         KafkaConfig
	Postgres      PostgresConfig
	Upload        UploadConfig
	Session       SessionConfig
	Observability ObservabilityConfig
}

// Load reads configuration from the environment, after loading a local .env
// file when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Service: ServiceConfig{
			Principal:         envOrDefault("SERVICE_PRINCIPAL", "svc-transcription"),
			HTTPPort:          envOrDefault("HTTP_PORT", "8080"),
			ObservabilityPort: envOrDefault("OBSERVABILITY_PORT", "9090"),
		},
		Providers: ProvidersConfig{
			Priority: envList("STT_PROVIDER_PRIORITY", []string{"assemblyai", "google", "whisper"}),
			MockOnly: envBool("STT_MOCK_ONLY", false),
			AssemblyAI: AssemblyAIConfig{
				APIKey:       os.Getenv("ASSEMBLYAI_API_KEY"),
				BaseURL:      envOrDefault("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com/v2"),
				PollInterval: envDuration("ASSEMBLYAI_POLL_INTERVAL", 2*time.Second),
				PollTimeout:  envDuration("ASSEMBLYAI_POLL_TIMEOUT", 5*time.Minute),
			},
			Google: GoogleConfig{
				Enabled:      envBool("GOOGLE_STT_ENABLED", false),
				LanguageCode: envOrDefault("GOOGLE_STT_LANGUAGE_CODE", "en-US"),
				SampleRateHz: envInt("GOOGLE_STT_SAMPLE_RATE_HZ", 16000),
			},
			Whisper: WhisperConfig{
				Endpoint: os.Getenv("WHISPER_ENDPOINT"),
				Model:    envOrDefault("WHISPER_MODEL", "whisper-1"),
				TempDir:  os.Getenv("WHISPER_TEMP_DIR"),
				Timeout:  envDuration("WHISPER_TIMEOUT", 2*time.Minute),
			},
		},
		Safety: SafetyConfig{
			FilterURL:     os.Getenv("CRISIS_FILTER_URL"),
			FilterTimeout: envDuration("CRISIS_FILTER_TIMEOUT", 5*time.Second),
		},
		Queue: QueueConfig{
			Workers:       envInt("QUEUE_WORKERS", 4),
			PollInterval:  envDuration("QUEUE_POLL_INTERVAL", 250*time.Millisecond),
			RetryBase:     envDuration("QUEUE_RETRY_BASE", 2*time.Second),
			RetryFactor:   envFloat("QUEUE_RETRY_FACTOR", 2),
			RetryCap:      envDuration("QUEUE_RETRY_CAP", time.Minute),
			MaxAttempts:   envInt("QUEUE_MAX_ATTEMPTS", 3),
			Retention:     envDuration("QUEUE_RETENTION", 24*time.Hour),
			SweepInterval: envDuration("QUEUE_SWEEP_INTERVAL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:   envBool("KAFKA_ENABLED", false),
			Brokers:   envList("KAFKA_BROKERS", nil),
			TopicJobs: envOrDefault("KAFKA_TOPIC_JOBS", "transcription.jobs"),
			TopicBias: envOrDefault("KAFKA_TOPIC_BIAS", "transcription.bias-audit"),
			Principal: envOrDefault("SERVICE_PRINCIPAL", "svc-transcription"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Upload: UploadConfig{
			Dir:           os.Getenv("UPLOAD_DIR"),
			MaxBytes:      envInt64("UPLOAD_MAX_BYTES", 25*1024*1024),
			SigningSecret: envOrDefault("UPLOAD_SIGNING_SECRET", "dev-signing-secret"),
			BaseURL:       envOrDefault("UPLOAD_BASE_URL", "http://localhost:8080"),
		},
		Session: SessionConfig{
			BufferChunks: envInt("SESSION_BUFFER_CHUNKS", 64),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
