package llmadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// CreateLLMFactory creates an LLM instance based on the provider configuration
func CreateLLMFactory(ctx context.Context, provider *core.ProviderConfig) (llms.Model, error) {
	switch provider.Provider {
	case core.ProviderGroq:
		return createGroqLLM(provider)
	case core.ProviderGoogle:
		return createGoogleLLM(ctx, provider)
	case core.ProviderMock:
		return NewMockLLM(provider.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider.Provider)
	}
}

// createGroqLLM talks to Groq through its OpenAI-compatible endpoint.
func createGroqLLM(p *core.ProviderConfig) (llms.Model, error) {
	baseURL := defaultGroqBaseURL
	if p.APIURL != "" {
		baseURL = p.APIURL
	}
	opts := []openai.Option{
		openai.WithModel(p.Model),
		openai.WithBaseURL(baseURL),
	}
	if p.APIKey != "" {
		opts = append(opts, openai.WithToken(p.APIKey))
	}
	return openai.New(opts...)
}

// createGoogleLLM creates a Gemini client
func createGoogleLLM(ctx context.Context, p *core.ProviderConfig) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithDefaultModel(p.Model),
	}
	if p.APIKey != "" {
		opts = append(opts, googleai.WithAPIKey(p.APIKey))
	}
	if p.APIURL != "" {
		return nil, fmt.Errorf("googleai does not support custom API URL")
	}
	return googleai.New(ctx, opts...)
}

// MockLLM is a deterministic llms.Model used by tests and offline runs.
type MockLLM struct {
	model string
}

// NewMockLLM creates a new mock LLM
func NewMockLLM(model string) *MockLLM {
	return &MockLLM{model: model}
}

// GenerateContent echoes the last human message and streams it word by word
// when a streaming function is supplied.
func (m *MockLLM) GenerateContent(
	ctx context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	var prompt string
	for _, message := range messages {
		if message.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range message.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt = text.Text
			}
		}
	}
	responseText := "Mock response for: " + prompt
	if opts.JSONMode {
		responseText = "{}"
	}
	if opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(responseText, " ") {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if word == "" {
				continue
			}
			if err := opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: responseText}},
	}, nil
}

// Call implements the legacy Call interface
func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
