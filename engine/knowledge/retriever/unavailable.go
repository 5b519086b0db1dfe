package retriever

import (
	"context"

	"github.com/compozy/vachanamrut/engine/knowledge"
)

// Offline is a retriever whose backend failed to start. Every search reports
// knowledge.ErrUnavailable with the startup cause.
type Offline struct {
	Cause error
}

var _ knowledge.Retriever = Offline{}

func (o Offline) Search(context.Context, string, *knowledge.Filter, int) (*knowledge.SearchResult, error) {
	return nil, knowledge.Unavailable(o.Cause)
}

func (o Offline) Ready(context.Context) error {
	return knowledge.Unavailable(o.Cause)
}
