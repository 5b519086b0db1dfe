package stage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/llm/gateway"
)

type reply struct {
	text string
	err  error
}

type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []reply
	requests []gateway.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req gateway.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.text, r.err
}

func says(texts ...string) *scriptedGenerator {
	g := &scriptedGenerator{}
	for _, text := range texts {
		g.replies = append(g.replies, reply{text: text})
	}
	return g
}

func fails(err error) *scriptedGenerator {
	return &scriptedGenerator{replies: []reply{{err: err}}}
}

var exhausted = &gateway.AllProvidersFailedError{Attempts: []gateway.Attempt{
	{Provider: core.ProviderGroq, Err: errors.New("503")},
	{Provider: core.ProviderGoogle, Err: errors.New("quota")},
}}

func TestStages_DetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want Language
	}{
		{name: "Should read a language code", out: `{"language": "gu"}`, want: LanguageGujarati},
		{name: "Should read a fenced object", out: "```json\n{\"language\": \"hi\"}\n```", want: LanguageHindi},
		{name: "Should accept language names", out: `{"language": "Hindi"}`, want: LanguageHindi},
		{name: "Should default unsupported languages to en", out: `{"language": "fr"}`, want: LanguageEnglish},
		{name: "Should default malformed output to en", out: `language: gu`, want: LanguageEnglish},
		{name: "Should default a missing key to en", out: `{}`, want: LanguageEnglish},
		{name: "Should default empty output to en", out: ``, want: LanguageEnglish},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := says(tc.out)
			lang, err := New(gen).DetectLanguage(t.Context(), "query")
			require.NoError(t, err)
			assert.Equal(t, tc.want, lang)
			require.Len(t, gen.requests, 1)
			assert.True(t, gen.requests[0].JSONMode)
			assert.Nil(t, gen.requests[0].Temperature)
		})
	}

	t.Run("Should default to en when a single provider call fails", func(t *testing.T) {
		lang, err := New(fails(errors.New("bad gateway"))).DetectLanguage(t.Context(), "q")
		require.NoError(t, err)
		assert.Equal(t, LanguageEnglish, lang)
	})

	t.Run("Should propagate provider exhaustion", func(t *testing.T) {
		_, err := New(fails(exhausted)).DetectLanguage(t.Context(), "q")
		assert.True(t, gateway.IsAllProvidersFailed(err))
	})

	t.Run("Should propagate cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := New(fails(context.Canceled)).DetectLanguage(ctx, "q")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStages_Route(t *testing.T) {
	t.Run("Should read every field", func(t *testing.T) {
		gen := says(`{"chapter": "Gadhada", "section": "I", "vachanamrut_no": 16}`)
		meta, err := New(gen).Route(t.Context(), "explain this", "user: Gadhada I-16?")
		require.NoError(t, err)
		require.NotNil(t, meta.Chapter)
		assert.Equal(t, "Gadhada", *meta.Chapter)
		assert.Equal(t, "I", *meta.Section)
		assert.Equal(t, 16, *meta.DiscourseNumber)
		assert.Contains(t, gen.requests[0].Messages[0].Content, "user: Gadhada I-16?")
		assert.True(t, gen.requests[0].JSONMode)
	})

	t.Run("Should return empty metadata for an empty object", func(t *testing.T) {
		meta, err := New(says(`{}`)).Route(t.Context(), "what is maya", "")
		require.NoError(t, err)
		assert.True(t, meta.IsEmpty())
		assert.Equal(t, "{}", meta.String())
	})

	t.Run("Should canonicalize names and numeric strings", func(t *testing.T) {
		meta, err := New(says(`{"chapter": "loya", "vachanamrut_no": "7"}`)).Route(t.Context(), "q", "")
		require.NoError(t, err)
		assert.Equal(t, "Loya", *meta.Chapter)
		assert.Nil(t, meta.Section)
		assert.Equal(t, 7, *meta.DiscourseNumber)
	})

	t.Run("Should drop unknown chapters and invalid numbers", func(t *testing.T) {
		meta, err := New(says(`{"chapter": "Atlantis", "section": "IV", "vachanamrut_no": 0}`)).
			Route(t.Context(), "q", "")
		require.NoError(t, err)
		assert.True(t, meta.IsEmpty())
	})

	t.Run("Should return empty metadata on malformed output", func(t *testing.T) {
		meta, err := New(says(`chapter Gadhada`)).Route(t.Context(), "q", "")
		require.NoError(t, err)
		assert.True(t, meta.IsEmpty())
	})

	t.Run("Should propagate provider exhaustion", func(t *testing.T) {
		_, err := New(fails(exhausted)).Route(t.Context(), "q", "")
		assert.True(t, gateway.IsAllProvidersFailed(err))
	})
}

func TestStages_TranslateAndRewrite(t *testing.T) {
	t.Run("Should return the trimmed translation", func(t *testing.T) {
		gen := says("  What is the nature of God?\n")
		out, err := New(gen).Translate(t.Context(), "ભગવાનનું સ્વરૂપ શું છે?")
		require.NoError(t, err)
		assert.Equal(t, "What is the nature of God?", out)
		assert.False(t, gen.requests[0].JSONMode)
	})

	t.Run("Should keep the input when the translation is blank", func(t *testing.T) {
		out, err := New(says("   ")).Translate(t.Context(), "धर्म क्या है")
		require.NoError(t, err)
		assert.Equal(t, "धर्म क्या है", out)
	})

	t.Run("Should keep the input when rewrite fails softly", func(t *testing.T) {
		out, err := New(fails(errors.New("timeout"))).Rewrite(t.Context(), "what is maya", RoutingMetadata{})
		require.NoError(t, err)
		assert.Equal(t, "what is maya", out)
	})

	t.Run("Should pass routing metadata to the rewrite prompt", func(t *testing.T) {
		chapter := "Sarangpur"
		gen := says("Sarangpur discourse on renunciation")
		out, err := New(gen).Rewrite(t.Context(), "what does it say", RoutingMetadata{Chapter: &chapter})
		require.NoError(t, err)
		assert.Equal(t, "Sarangpur discourse on renunciation", out)
		assert.Contains(t, gen.requests[0].Messages[0].Content, `{"chapter":"Sarangpur"}`)
	})

	t.Run("Should propagate provider exhaustion from rewrite", func(t *testing.T) {
		_, err := New(fails(exhausted)).Rewrite(t.Context(), "q", RoutingMetadata{})
		assert.True(t, gateway.IsAllProvidersFailed(err))
	})
}

func TestStages_Rerank(t *testing.T) {
	t.Run("Should read the ranking", func(t *testing.T) {
		gen := says(`{"ranked_indices": [2, 0, 1]}`)
		order, err := New(gen).Rerank(t.Context(), "q", []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, RankingOrder{2, 0, 1}, order)
		assert.Contains(t, gen.requests[0].Messages[0].Content, "[2] c")
	})

	t.Run("Should skip non integer entries", func(t *testing.T) {
		order, err := New(says(`{"ranked_indices": [1, "x", 0.5, 0]}`)).Rerank(t.Context(), "q", []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, RankingOrder{1, 0}, order)
	})

	t.Run("Should return nil on malformed output", func(t *testing.T) {
		order, err := New(says(`{"ranked_indices": "2,0,1"}`)).Rerank(t.Context(), "q", []string{"a"})
		require.NoError(t, err)
		assert.Nil(t, order)
	})

	t.Run("Should not call the gateway without passages", func(t *testing.T) {
		gen := says()
		order, err := New(gen).Rerank(t.Context(), "q", nil)
		require.NoError(t, err)
		assert.Nil(t, order)
		assert.Empty(t, gen.requests)
	})

	t.Run("Should propagate provider exhaustion", func(t *testing.T) {
		_, err := New(fails(exhausted)).Rerank(t.Context(), "q", []string{"a"})
		assert.True(t, gateway.IsAllProvidersFailed(err))
	})
}

func TestRoutingMetadata_Clauses(t *testing.T) {
	chapter, section, number := "Gadhada", "II", 13

	t.Run("Should produce no clauses when empty", func(t *testing.T) {
		assert.Empty(t, RoutingMetadata{}.Clauses())
	})

	t.Run("Should produce clauses in field order", func(t *testing.T) {
		clauses := RoutingMetadata{Chapter: &chapter, Section: &section, DiscourseNumber: &number}.Clauses()
		assert.Equal(t, []knowledge.Clause{
			{Field: knowledge.FieldChapter, Value: "Gadhada"},
			{Field: knowledge.FieldSection, Value: "II"},
			{Field: knowledge.FieldDiscourseNumber, Value: 13},
		}, clauses)
	})
}
