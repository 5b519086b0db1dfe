package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Run("Should embed the query for language detection", func(t *testing.T) {
		out, err := RenderDetectLanguage("ભગવાન શું છે?")
		require.NoError(t, err)
		assert.Contains(t, out, "ભગવાન શું છે?")
		assert.Contains(t, out, `{"language": "en"}`)
	})

	t.Run("Should list chapters and sections for routing", func(t *testing.T) {
		out, err := RenderRoute("explain this", "user: tell me about Gadhada I-16")
		require.NoError(t, err)
		assert.Contains(t, out, "Gadhada, Sarangpur, Kariyani, Loya, Panchala, Vartal, Amdavad, Jetalpur, Ashlali")
		assert.Contains(t, out, "I, II, III, Middle, Last")
		assert.Contains(t, out, "user: tell me about Gadhada I-16")
	})

	t.Run("Should mark missing history", func(t *testing.T) {
		out, err := RenderRoute("what is maya", "")
		require.NoError(t, err)
		assert.Contains(t, out, "(none)")
	})

	t.Run("Should number rerank passages from zero", func(t *testing.T) {
		out, err := RenderRerank("q", []string{"alpha", "bravo", "charlie"})
		require.NoError(t, err)
		assert.Contains(t, out, "[0] alpha\n[1] bravo\n[2] charlie")
	})

	t.Run("Should include context query and language in the answer prompt", func(t *testing.T) {
		out, err := RenderAnswer("p2\n\np0", "what is dharma", "gu")
		require.NoError(t, err)
		assert.Contains(t, out, "p2\n\np0")
		assert.Contains(t, out, "what is dharma")
		assert.Contains(t, out, "Answer language: gu")
	})

	t.Run("Should render translate and rewrite prompts", func(t *testing.T) {
		out, err := RenderTranslate("धर्म क्या है")
		require.NoError(t, err)
		assert.Contains(t, out, "धर्म क्या है")
		out, err = RenderRewrite("what does it say", `{"chapter":"Loya"}`)
		require.NoError(t, err)
		assert.Contains(t, out, `Referenced discourse: {"chapter":"Loya"}`)
	})

	t.Run("Should fail for unknown templates", func(t *testing.T) {
		_, err := Render("missing.tmpl", nil)
		require.Error(t, err)
	})
}
