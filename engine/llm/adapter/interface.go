package llmadapter

import (
	"context"

	"github.com/compozy/vachanamrut/engine/core"
)

// Role constants for message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMRequest represents a request to the LLM, independent of provider
type LLMRequest struct {
	SystemPrompt string
	Messages     []Message
	Options      CallOptions
}

// Message represents a conversation message
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// CallOptions represents options for the LLM call
type CallOptions struct {
	Temperature float64
	MaxTokens   int32
	UseJSONMode bool
}

// LLMResponse represents the response from the LLM
type LLMResponse struct {
	Content string
	Usage   *Usage
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChunkFunc receives streamed text fragments in arrival order.
// Returning an error aborts the stream.
type ChunkFunc func(ctx context.Context, chunk []byte) error

// LLMClient is the main interface for LLM interactions
type LLMClient interface {
	// GenerateContent sends a request to the LLM and returns the full response
	GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
	// StreamContent sends a request and delivers fragments to onChunk as they arrive
	StreamContent(ctx context.Context, req *LLMRequest, onChunk ChunkFunc) (*LLMResponse, error)
	// Close cleans up any resources held by the client
	Close() error
}

// Factory creates LLMClient instances based on provider configuration
type Factory interface {
	CreateClient(ctx context.Context, config *core.ProviderConfig) (LLMClient, error)
}
