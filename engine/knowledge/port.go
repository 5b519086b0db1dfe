package knowledge

import (
	"context"
	"errors"
)

// DefaultSearchLimit is the number of passages requested per question.
const DefaultSearchLimit = 5

// ErrUnavailable marks a retrieval backend that is not initialized or not reachable.
var ErrUnavailable = errors.New("knowledge: retrieval backend unavailable")

// Retriever searches the scripture index.
type Retriever interface {
	// Search returns at most limit passages for query restricted by filter.
	// A nil filter searches the whole corpus.
	Search(ctx context.Context, query string, filter *Filter, limit int) (*SearchResult, error)
}

// SearchResult holds passages and their metadata aligned by index.
type SearchResult struct {
	Documents []string         `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

// Len returns the number of aligned passages.
func (r *SearchResult) Len() int {
	if r == nil {
		return 0
	}
	return min(len(r.Documents), len(r.Metadatas))
}

// Empty reports whether no passage was returned.
func (r *SearchResult) Empty() bool {
	return r.Len() == 0
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil {
		return ErrUnavailable
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return errors.Join(ErrUnavailable, err)
}
