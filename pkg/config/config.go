package config

import (
	"context"
	"encoding/json"
	"time"
)

// Config represents the complete configuration for the scripture QA service.
type Config struct {
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Runtime    RuntimeConfig    `koanf:"runtime"    validate:"required"`
	LLM        LLMConfig        `koanf:"llm"        validate:"required"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"  validate:"required"`
	Streaming  StreamingConfig  `koanf:"streaming"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host        string        `koanf:"host"         validate:"required"        env:"SERVER_HOST"`
	Port        int           `koanf:"port"         validate:"min=1,max=65535" env:"SERVER_PORT"`
	CORSEnabled bool          `koanf:"cors_enabled"                            env:"SERVER_CORS_ENABLED"`
	Timeout     time.Duration `koanf:"timeout"                                 env:"SERVER_TIMEOUT"`
	// AskRateLimit uses the ulule/limiter formatted rate syntax, e.g. "60-M".
	AskRateLimit string `koanf:"ask_rate_limit" validate:"omitempty,rate_format" env:"SERVER_ASK_RATE_LIMIT"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error"          env:"RUNTIME_LOG_LEVEL"`
}

// LLMConfig configures the provider gateway.
type LLMConfig struct {
	Primary     string             `koanf:"primary"     validate:"oneof=groq google"           env:"LLM_PRIMARY"`
	Secondary   string             `koanf:"secondary"   validate:"omitempty,oneof=groq google" env:"LLM_SECONDARY"`
	Timeout     time.Duration      `koanf:"timeout"     validate:"min=0"                       env:"LLM_TIMEOUT"`
	Temperature float64            `koanf:"temperature" validate:"gte=0,lte=2"                 env:"LLM_TEMPERATURE"`
	Groq        GroqConfig         `koanf:"groq"`
	Google      GoogleConfig       `koanf:"google"`
	RateLimit   LLMRateLimitConfig `koanf:"rate_limit"`
}

// GroqConfig holds the OpenAI-compatible Groq endpoint settings.
type GroqConfig struct {
	APIKeys []SensitiveString `koanf:"api_keys" env:"GROQ_API_KEY"  sensitive:"true"`
	Model   string            `koanf:"model"    env:"GROQ_MODEL"`
	BaseURL string            `koanf:"base_url" env:"GROQ_BASE_URL"`
}

// GoogleConfig holds the Gemini settings.
type GoogleConfig struct {
	APIKeys []SensitiveString `koanf:"api_keys" env:"GEMINI_API_KEYS" sensitive:"true"`
	Model   string            `koanf:"model"    env:"GEMINI_MODEL"`
}

// LLMRateLimitConfig throttles calls per provider. Zero values disable a limit.
type LLMRateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"             env:"LLM_RATE_LIMIT_ENABLED"`
	Concurrency       int     `koanf:"concurrency"         validate:"min=0" env:"LLM_RATE_LIMIT_CONCURRENCY"`
	RequestsPerMinute float64 `koanf:"requests_per_minute" validate:"min=0" env:"LLM_RATE_LIMIT_RPM"`
	Burst             int     `koanf:"burst"               validate:"min=0" env:"LLM_RATE_LIMIT_BURST"`
}

// KnowledgeConfig configures retrieval and the corpus lookup.
type KnowledgeConfig struct {
	Vector      VectorConfig   `koanf:"vector"`
	Embedder    EmbedderConfig `koanf:"embedder"`
	CorpusPath  string         `koanf:"corpus_path"  env:"KNOWLEDGE_CORPUS_PATH"`
	SearchLimit int            `koanf:"search_limit" validate:"min=1,max=50" env:"KNOWLEDGE_SEARCH_LIMIT"`
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Provider   string          `koanf:"provider"   validate:"oneof=qdrant memory" env:"VECTOR_PROVIDER"`
	URL        string          `koanf:"url"                                       env:"VECTOR_URL"`
	Collection string          `koanf:"collection" validate:"required"            env:"VECTOR_COLLECTION"`
	APIKey     SensitiveString `koanf:"api_key"                                   env:"VECTOR_API_KEY"     sensitive:"true"`
	Dimension  int             `koanf:"dimension"  validate:"min=1"               env:"VECTOR_DIMENSION"`
	Timeout    time.Duration   `koanf:"timeout"                                   env:"VECTOR_TIMEOUT"`
	MaxRetries uint64          `koanf:"max_retries"                               env:"VECTOR_MAX_RETRIES"`
}

// EmbedderConfig configures query embeddings.
type EmbedderConfig struct {
	Provider  string          `koanf:"provider"   validate:"oneof=local openai google" env:"EMBEDDER_PROVIDER"`
	Model     string          `koanf:"model"      validate:"required"                  env:"EMBEDDER_MODEL"`
	APIKey    SensitiveString `koanf:"api_key"                                         env:"EMBEDDER_API_KEY"   sensitive:"true"`
	BaseURL   string          `koanf:"base_url"                                        env:"EMBEDDER_BASE_URL"`
	ModelsDir string          `koanf:"models_dir"                                      env:"EMBEDDER_MODELS_DIR"`
	CacheSize int             `koanf:"cache_size" validate:"min=0"                     env:"EMBEDDER_CACHE_SIZE"`
}

// StreamingConfig controls mirroring of pipeline events into Redis.
type StreamingConfig struct {
	Enabled    bool          `koanf:"enabled"     env:"STREAMING_ENABLED"`
	RedisURL   string        `koanf:"redis_url"   env:"STREAMING_REDIS_URL"`
	TTL        time.Duration `koanf:"ttl"         env:"STREAMING_TTL"`
	MaxEntries int64         `koanf:"max_entries" validate:"min=0" env:"STREAMING_MAX_ENTRIES"`
}

// MonitoringConfig controls the Prometheus exporter.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"`
}

// Service defines the configuration management service interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns the source type that last provided a configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Metadata contains metadata about configuration sources.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Load loads configuration from defaults and the environment.
func Load() (*Config, error) {
	return NewService().Load(context.Background())
}

// Default returns a Config with default values for development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			CORSEnabled:  true,
			Timeout:      5 * time.Minute,
			AskRateLimit: "60-M",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		LLM: LLMConfig{
			Primary:     "groq",
			Secondary:   "google",
			Timeout:     30 * time.Second,
			Temperature: 0.1,
			Groq: GroqConfig{
				Model:   "llama-3.3-70b-versatile",
				BaseURL: "https://api.groq.com/openai/v1",
			},
			Google: GoogleConfig{
				Model: "gemini-1.5-flash",
			},
		},
		Knowledge: KnowledgeConfig{
			Vector: VectorConfig{
				Provider:   "qdrant",
				URL:        "http://localhost:6333",
				Collection: "vachanamrut_rag",
				Dimension:  384,
				Timeout:    10 * time.Second,
				MaxRetries: 2,
			},
			Embedder: EmbedderConfig{
				Provider:  "local",
				Model:     "sentence-transformers/all-MiniLM-L6-v2",
				CacheSize: 512,
			},
			CorpusPath:  "./data/vachanamrut_cleaned.json",
			SearchLimit: 5,
		},
		Streaming: StreamingConfig{
			Enabled:    false,
			RedisURL:   "redis://localhost:6379/0",
			TTL:        24 * time.Hour,
			MaxEntries: 500,
		},
		Monitoring: MonitoringConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}

// SensitiveString holds secrets that must not leak into logs or JSON output.
type SensitiveString string

const redacted = "[REDACTED]"

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the underlying secret.
func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SensitiveString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SensitiveString(raw)
	return nil
}

// SecretValues unwraps a slice of secrets.
func SecretValues(values []SensitiveString) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Value())
	}
	return out
}
