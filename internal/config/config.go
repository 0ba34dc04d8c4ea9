// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rollback policies applied by the conversation synchronizer after a failed write.
const (
	RollbackDiscard      = "discard"
	RollbackPreserveTail = "preserve-tail"
)

// LLM providers.
const (
	ProviderGroq    = "groq"
	ProviderGemini  = "gemini"
	ProviderOffline = "offline"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Pipeline      PipelineConfig
	LLM           LLMConfig
	Store         StoreConfig
	Knowledge     KnowledgeConfig
	Kafka         KafkaConfig
	Realtime      RealtimeConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process identity and listener settings.
type ServiceConfig struct {
	Principal string
	HTTPAddr  string
	GRPCPort  string
	SessionID string
}

// PipelineConfig holds buffering, batching and worker settings.
type PipelineConfig struct {
	FlushInterval      time.Duration
	WorkerCount        int
	BufferCapacity     int
	AdvisoryTimeout    time.Duration
	PersistTimeout     time.Duration
	RollbackPolicy     string
	ContextWindowBytes int
	Embedded           bool
}

// LLMConfig selects the completion provider and models.
type LLMConfig struct {
	Provider           string
	GroqAPIKey         string
	GroqBaseURL        string
	GeminiAPIKey       string
	GeminiModel        string
	ConsolidationModel string
	AdvisoryModel      string
}

// StoreConfig selects the conversation state backend.
type StoreConfig struct {
	Backend         string // memory, postgres, redis
	DatabaseURL     string
	MaxConns        int
	RedisAddr       string
	RedisSessionTTL time.Duration
	SummaryCacheTTL time.Duration
	PurgeOnExit     bool
}

// KnowledgeConfig selects the guideline retriever.
type KnowledgeConfig struct {
	Backend string // none, static, postgres
	TopK    int
}

// KafkaConfig holds event bus settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicSuggestions string
	TopicTurns       string
	Principal        string
}

// RealtimeConfig holds websocket settings for the hub and its clients.
type RealtimeConfig struct {
	AllowedOrigins      []string
	InsecureSkipVerify  bool
	WriteTimeout        time.Duration
	ReadIdleTimeout     time.Duration
	RateEvents          float64
	RateBurst           int
	HubURL              string
	RelayTranscriptions bool
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from environment variables.
// Invalid values fall back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-dispatch-copilot")

	groqKey := os.Getenv("GROQ_API_KEY")
	geminiKey := os.Getenv("GEMINI_API_KEY")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			HTTPAddr:  envOrDefault("HTTP_ADDR", ":8765"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			SessionID: envOrDefault("SESSION_ID", uuid.NewString()),
		},
		Pipeline: PipelineConfig{
			FlushInterval:      envOrDefaultDuration("FLUSH_INTERVAL", 5500*time.Millisecond),
			WorkerCount:        envOrDefaultInt("WORKER_COUNT", 3),
			BufferCapacity:     envOrDefaultInt("BUFFER_CAPACITY", 1000),
			AdvisoryTimeout:    envOrDefaultDuration("ADVISORY_TIMEOUT", 15*time.Second),
			PersistTimeout:     envOrDefaultDuration("PERSIST_TIMEOUT", 10*time.Second),
			RollbackPolicy:     rollbackPolicy(os.Getenv("ROLLBACK_POLICY")),
			ContextWindowBytes: envOrDefaultInt("CONTEXT_WINDOW_BYTES", 8192),
			Embedded:           envOrDefaultBool("PIPELINE_EMBEDDED", true),
		},
		LLM: LLMConfig{
			Provider:           llmProvider(os.Getenv("LLM_PROVIDER"), groqKey, geminiKey),
			GroqAPIKey:         groqKey,
			GroqBaseURL:        envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			GeminiAPIKey:       geminiKey,
			GeminiModel:        envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
			ConsolidationModel: envOrDefault("CONSOLIDATION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct"),
			AdvisoryModel:      envOrDefault("ADVISORY_MODEL", "llama-3.3-70b-versatile"),
		},
		Store: StoreConfig{
			Backend:         envOrDefault("STORE_BACKEND", "memory"),
			DatabaseURL:     os.Getenv("DATABASE_URL"),
			MaxConns:        envOrDefaultInt("DB_MAX_CONNS", 10),
			RedisAddr:       envOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisSessionTTL: envOrDefaultDuration("REDIS_SESSION_TTL", 2*time.Hour),
			SummaryCacheTTL: envOrDefaultDuration("SUMMARY_CACHE_TTL", 2*time.Second),
			PurgeOnExit:     envOrDefaultBool("PURGE_ON_EXIT", true),
		},
		Knowledge: KnowledgeConfig{
			Backend: envOrDefault("KNOWLEDGE_BACKEND", "static"),
			TopK:    envOrDefaultInt("KNOWLEDGE_TOP_K", 3),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicSuggestions: envOrDefault("KAFKA_TOPIC_SUGGESTIONS", "dispatch.suggestions"),
			TopicTurns:       envOrDefault("KAFKA_TOPIC_TURNS", "dispatch.turns"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Realtime: RealtimeConfig{
			AllowedOrigins:      envOrDefaultList("WS_ALLOWED_ORIGINS", nil),
			InsecureSkipVerify:  envOrDefaultBool("WS_INSECURE_SKIP_VERIFY", false),
			WriteTimeout:        envOrDefaultDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			ReadIdleTimeout:     envOrDefaultDuration("WS_READ_IDLE_TIMEOUT", 2*time.Minute),
			RateEvents:          envOrDefaultFloat("WS_RATE_EVENTS", 50),
			RateBurst:           envOrDefaultInt("WS_RATE_BURST", 100),
			HubURL:              envOrDefault("HUB_URL", "ws://localhost:8765/ws"),
			RelayTranscriptions: envOrDefaultBool("WS_RELAY_TRANSCRIPTIONS", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func rollbackPolicy(v string) string {
	if strings.ToLower(strings.TrimSpace(v)) == RollbackPreserveTail {
		return RollbackPreserveTail
	}
	return RollbackDiscard
}

// llmProvider honours an explicit choice when its key is present and
// otherwise picks the first provider with a key, else offline.
func llmProvider(v, groqKey, geminiKey string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case ProviderOffline:
		return ProviderOffline
	case ProviderGroq:
		if groqKey != "" {
			return ProviderGroq
		}
	case ProviderGemini:
		if geminiKey != "" {
			return ProviderGemini
		}
	}
	switch {
	case groqKey != "":
		return ProviderGroq
	case geminiKey != "":
		return ProviderGemini
	default:
		return ProviderOffline
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
