package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMap(t *testing.T) {
	t.Run("Should keep nil as nil", func(t *testing.T) {
		assert.Nil(t, CloneMap[string, any](nil))
	})

	t.Run("Should copy entries", func(t *testing.T) {
		src := map[string]any{"chapter": "Loya"}
		dst := CloneMap(src)
		dst["chapter"] = "Vartal"
		assert.Equal(t, "Loya", src["chapter"])
	})
}

func TestCloneMetadata(t *testing.T) {
	t.Run("Should copy every map", func(t *testing.T) {
		src := []map[string]any{{"section": "I"}, nil}
		dst := CloneMetadata(src)
		dst[0]["section"] = "II"
		assert.Equal(t, "I", src[0]["section"])
		assert.Nil(t, dst[1])
	})
}
