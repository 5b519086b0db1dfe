package vectordb

import (
	"context"
	"time"

	"github.com/compozy/vachanamrut/engine/knowledge"
)

// Provider enumerates supported vector database backends.
type Provider string

const (
	ProviderQdrant Provider = "qdrant"
	// ProviderMemory keeps vectors in process; used for development and tests.
	ProviderMemory Provider = "memory"
)

// Record represents a passage persisted to the vector store.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// SearchOptions controls similarity search execution.
type SearchOptions struct {
	TopK     int
	MinScore float64
	Filter   *knowledge.Filter
}

// Match captures a similarity search result.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Store exposes the minimal contract for loading and searching passages.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Close(ctx context.Context) error
}

// Config captures normalized connection details for a vector database.
type Config struct {
	Provider   Provider
	URL        string
	Collection string
	APIKey     string
	Metric     string
	Dimension  int
	Timeout    time.Duration
	MaxRetries uint64
	// EnsureCollection creates the collection on startup when missing.
	EnsureCollection bool
}
