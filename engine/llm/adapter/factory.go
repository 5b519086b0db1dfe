package llmadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/vachanamrut/engine/core"
)

// DefaultFactory builds langchaingo-backed clients for Groq, Gemini and the
// offline mock provider.
type DefaultFactory struct{}

func NewDefaultFactory() Factory {
	return DefaultFactory{}
}

// CreateClient validates the provider settings before building a client.
// Groq and Gemini clients need a credential; the mock provider does not.
func (DefaultFactory) CreateClient(ctx context.Context, cfg *core.ProviderConfig) (LLMClient, error) {
	if cfg == nil {
		return nil, errors.New("provider config is required")
	}
	switch cfg.Provider {
	case core.ProviderGroq, core.ProviderGoogle:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("%s client needs an API key", cfg.Provider)
		}
	case core.ProviderMock:
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	return NewLangChainAdapter(ctx, cfg)
}
