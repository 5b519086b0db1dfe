package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appconfig "github.com/compozy/vachanamrut/pkg/config"
)

var (
	errMissingProvider   = errors.New("vector_db provider is required")
	errMissingURL        = errors.New("vector_db url is required")
	errMissingCollection = errors.New("vector_db collection is required")
	errInvalidDimension  = errors.New("vector_db dimension must be greater than zero")
)

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New instantiates a vector store backed by the requested provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderQdrant:
		store, err := newQdrantStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case ProviderMemory:
		return newMemoryStore(cfg), nil
	default:
		return nil, fmt.Errorf("vector_db: provider %q is not supported", cfg.Provider)
	}
}

// ConfigFromApp converts the application vector settings.
func ConfigFromApp(cfg *appconfig.VectorConfig) *Config {
	return &Config{
		Provider:   Provider(strings.ToLower(strings.TrimSpace(cfg.Provider))),
		URL:        strings.TrimSpace(cfg.URL),
		Collection: cfg.Collection,
		APIKey:     cfg.APIKey.Value(),
		Dimension:  cfg.Dimension,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("vector_db config is required")
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return errMissingProvider
	}
	if cfg.Provider == ProviderQdrant {
		if strings.TrimSpace(cfg.URL) == "" {
			return errMissingURL
		}
		if strings.TrimSpace(cfg.Collection) == "" {
			return errMissingCollection
		}
	}
	if cfg.Dimension <= 0 {
		return errInvalidDimension
	}
	return nil
}
