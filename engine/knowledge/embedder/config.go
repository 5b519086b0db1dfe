package embedder

import (
	"context"
	"strings"

	appconfig "github.com/compozy/vachanamrut/pkg/config"
)

// Provider enumerates the supported embedding backends.
type Provider string

const (
	// ProviderLocal runs sentence-transformer models in process via cybertron.
	ProviderLocal  Provider = "local"
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
)

// Config describes one embedding model.
type Config struct {
	Provider  Provider
	Model     string
	APIKey    string
	BaseURL   string
	ModelsDir string
	CacheSize int
}

// Embedder produces vectors for queries and documents.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// ConfigFromApp converts the application embedder settings.
func ConfigFromApp(cfg *appconfig.EmbedderConfig) *Config {
	return &Config{
		Provider:  Provider(strings.ToLower(strings.TrimSpace(cfg.Provider))),
		Model:     strings.TrimSpace(cfg.Model),
		APIKey:    cfg.APIKey.Value(),
		BaseURL:   strings.TrimSpace(cfg.BaseURL),
		ModelsDir: strings.TrimSpace(cfg.ModelsDir),
		CacheSize: cfg.CacheSize,
	}
}
