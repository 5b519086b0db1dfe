package llmadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/tmc/langchaingo/llms"
)

// LangChainAdapter adapts langchaingo to our LLMClient interface
type LangChainAdapter struct {
	model    llms.Model
	provider core.ProviderConfig
	errors   *ErrorParser
}

// NewLangChainAdapter creates a new LangChain adapter
func NewLangChainAdapter(ctx context.Context, config *core.ProviderConfig) (*LangChainAdapter, error) {
	model, err := CreateLLMFactory(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}
	return NewLangChainAdapterWithModel(model, config), nil
}

// NewLangChainAdapterWithModel wraps an existing langchaingo model.
func NewLangChainAdapterWithModel(model llms.Model, config *core.ProviderConfig) *LangChainAdapter {
	return &LangChainAdapter{
		model:    model,
		provider: *config,
		errors:   NewErrorParser(string(config.Provider)),
	}
}

// GenerateContent implements LLMClient interface
func (a *LangChainAdapter) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	messages := a.convertMessages(req)
	options := a.buildCallOptions(req)
	response, err := a.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, a.wrapError(err)
	}
	return a.convertResponse(response)
}

// StreamContent implements LLMClient interface
func (a *LangChainAdapter) StreamContent(
	ctx context.Context,
	req *LLMRequest,
	onChunk ChunkFunc,
) (*LLMResponse, error) {
	messages := a.convertMessages(req)
	options := a.buildCallOptions(req)
	options = append(options, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onChunk(ctx, chunk)
	}))
	response, err := a.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, a.wrapError(err)
	}
	return a.convertResponse(response)
}

// Close implements LLMClient interface
func (a *LangChainAdapter) Close() error {
	return nil
}

func (a *LangChainAdapter) wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := IsLLMError(err); ok {
		return err
	}
	if parsed := a.errors.ParseError(err); parsed != nil {
		return parsed
	}
	return fmt.Errorf("langchain GenerateContent failed: %w", err)
}

// convertMessages converts our Message format to langchain MessageContent.
// langchaingo's googleai client lifts the system message into the system
// instruction and renders assistant turns as the "model" role.
func (a *LangChainAdapter) convertMessages(req *LLMRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		messages = append(messages, llms.TextParts(a.mapMessageRole(msg.Role), msg.Content))
	}
	return messages
}

// mapMessageRole maps our role to langchain ChatMessageType
func (a *LangChainAdapter) mapMessageRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// buildCallOptions builds langchain call options from our request
func (a *LangChainAdapter) buildCallOptions(req *LLMRequest) []llms.CallOption {
	options := []llms.CallOption{llms.WithTemperature(req.Options.Temperature)}
	if req.Options.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(int(req.Options.MaxTokens)))
	}
	if req.Options.UseJSONMode {
		options = append(options, llms.WithJSONMode())
	}
	return options
}

// convertResponse converts langchain response to our format
func (a *LangChainAdapter) convertResponse(resp *llms.ContentResponse) (*LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from LLM")
	}
	choice := resp.Choices[0]
	return &LLMResponse{
		Content: choice.Content,
		Usage:   extractUsage(choice.GenerationInfo),
	}, nil
}

// extractUsage reads token counts from provider generation info when present.
func extractUsage(info map[string]any) *Usage {
	if len(info) == 0 {
		return nil
	}
	prompt := intFromInfo(info, "PromptTokens", "input_tokens")
	completion := intFromInfo(info, "CompletionTokens", "output_tokens")
	total := intFromInfo(info, "TotalTokens", "total_tokens")
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	if total == 0 {
		total = prompt + completion
	}
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
