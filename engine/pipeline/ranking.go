package pipeline

import (
	"context"

	"github.com/compozy/vachanamrut/engine/pipeline/stage"
	"github.com/compozy/vachanamrut/pkg/logger"
)

// ValidRanking checks order against n passages. Out-of-range and repeated
// indices are dropped; when nothing usable remains the identity order is
// returned.
func ValidRanking(order stage.RankingOrder, n int) []int {
	valid := usableIndices(order, n)
	if len(valid) == 0 {
		return identity(n)
	}
	return valid
}

func usableIndices(order stage.RankingOrder, n int) []int {
	seen := make(map[int]struct{}, len(order))
	valid := make([]int, 0, len(order))
	for _, i := range order {
		if i < 0 || i >= n {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		valid = append(valid, i)
	}
	return valid
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// ApplyRanking reorders documents and metadatas in lock-step. Passages left
// out of a partial ranking are dropped.
func ApplyRanking(
	ctx context.Context,
	order stage.RankingOrder,
	documents []string,
	metadatas []map[string]any,
) ([]string, []map[string]any) {
	n := min(len(documents), len(metadatas))
	idx := usableIndices(order, n)
	if dropped := len(order) - len(idx); dropped > 0 {
		logger.FromContext(ctx).Debug(
			"Dropped unusable rerank indices",
			"dropped", dropped,
			"ranked", len(order),
			"passages", n,
			"fallback", len(idx) == 0,
		)
	}
	if len(idx) == 0 {
		idx = identity(n)
	}
	docs := make([]string, 0, len(idx))
	metas := make([]map[string]any, 0, len(idx))
	for _, i := range idx {
		docs = append(docs, documents[i])
		metas = append(metas, metadatas[i])
	}
	return docs, metas
}
