package core

import "fmt"

// ProviderName identifies an LLM backend reachable through the gateway.
type ProviderName string

const (
	ProviderGroq   ProviderName = "groq"
	ProviderGoogle ProviderName = "google"
	ProviderMock   ProviderName = "mock" // Mock provider for testing
)

// ParseProviderName accepts the configured provider labels.
func ParseProviderName(s string) (ProviderName, error) {
	switch ProviderName(s) {
	case ProviderGroq, ProviderGoogle, ProviderMock:
		return ProviderName(s), nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// ProviderConfig is the resolved configuration for one provider client.
type ProviderConfig struct {
	Provider    ProviderName `json:"provider"`
	Model       string       `json:"model"`
	APIKey      string       `json:"-"`
	APIURL      string       `json:"api_url,omitempty"`
	Temperature float64      `json:"temperature"`
	JSONMode    bool         `json:"json_mode,omitempty"`
}

// NewProviderConfig creates a ProviderConfig for a single credential.
func NewProviderConfig(provider ProviderName, model string, apiKey string) *ProviderConfig {
	return &ProviderConfig{
		Provider: provider,
		Model:    model,
		APIKey:   apiKey,
	}
}
