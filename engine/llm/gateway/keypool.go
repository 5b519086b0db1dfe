package gateway

import (
	"math/rand/v2"
	"strings"
)

// KeyPool holds the API keys of one provider. It is immutable after
// construction, so concurrent Pick calls need no locking.
type KeyPool struct {
	keys []string
}

// NewKeyPool trims every key and drops blanks and duplicates.
func NewKeyPool(raw []string) *KeyPool {
	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return &KeyPool{keys: keys}
}

// Pick returns a uniformly random key.
func (p *KeyPool) Pick() (string, bool) {
	if p == nil || len(p.keys) == 0 {
		return "", false
	}
	return p.keys[rand.IntN(len(p.keys))], true
}

func (p *KeyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}
