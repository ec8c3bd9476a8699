package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-core/internal/domain/entity"
)

func chatReq(mode entity.Mode, provider, content string) *entity.ChatRequest {
	return &entity.ChatRequest{
		Messages: []entity.Message{
			{Role: entity.RoleUser, Content: "earlier turn"},
			{Role: entity.RoleUser, Content: content},
		},
		Provider: provider,
		Model:    "m",
		Mode:     mode,
	}
}

func TestAugmentPlainOllamaUntouched(t *testing.T) {
	t.Parallel()
	a := NewPromptAugmenter(&stubSearch{}, zerolog.Nop())

	text, searched := a.Augment(context.Background(), chatReq(entity.ModePlain, ProviderOllama, "hello"))
	assert.Equal(t, "hello", text)
	assert.False(t, searched)
}

func TestAugmentGraphSuffixAfterModePrefix(t *testing.T) {
	t.Parallel()
	a := NewPromptAugmenter(&stubSearch{}, zerolog.Nop())

	text, _ := a.Augment(context.Background(), chatReq(entity.ModeDeepThought, ProviderGemini, "why is the sky blue"))
	require.True(t, strings.HasPrefix(text, deepThoughtPrefix))
	require.True(t, strings.HasSuffix(text, graphSuffix))
	// suffix strictly after the prefix and the original text, never interleaved
	assert.Greater(t, strings.Index(text, graphSuffix), strings.Index(text, "why is the sky blue"))
}

func TestAugmentBrowserWithResults(t *testing.T) {
	t.Parallel()
	search := &stubSearch{results: []entity.SearchResult{
		{Title: "Go", Snippet: "a language", SourceHost: "go.dev"},
		{Title: "Gopher", Snippet: "a rodent", SourceHost: "wikipedia.org"},
	}}
	a := NewPromptAugmenter(search, zerolog.Nop())

	text, searched := a.Augment(context.Background(), chatReq(entity.ModeBrowser, ProviderOllama, "what is go"))
	require.True(t, searched)
	assert.Contains(t, text, "[go.dev] Go: a language")
	assert.Contains(t, text, "[wikipedia.org] Gopher: a rodent")
	assert.Contains(t, text, "User query: what is go")
}

func TestAugmentBrowserNoResultsKeepsQuery(t *testing.T) {
	t.Parallel()
	a := NewPromptAugmenter(&stubSearch{}, zerolog.Nop())

	text, searched := a.Augment(context.Background(), chatReq(entity.ModeBrowser, ProviderOllama, "obscure thing"))
	require.True(t, searched)
	assert.Contains(t, text, "Web search returned no results")
	assert.Contains(t, text, "obscure thing")
}

func TestAugmentTopKResultsCap(t *testing.T) {
	t.Parallel()
	var many []entity.SearchResult
	for i := 0; i < 9; i++ {
		many = append(many, entity.SearchResult{Title: "t", Snippet: "s", SourceHost: "h"})
	}
	a := NewPromptAugmenter(&stubSearch{results: many}, zerolog.Nop())

	text, _ := a.Ground(context.Background(), "q")
	assert.Equal(t, searchTopK, strings.Count(text, "[h] t: s"))
}

func TestAugmentVisionBypassesTextAugmentation(t *testing.T) {
	t.Parallel()
	search := &stubSearch{results: []entity.SearchResult{{Title: "x"}}}
	a := NewPromptAugmenter(search, zerolog.Nop())

	req := chatReq(entity.ModeBrowser, ProviderGemini, "what is in this picture")
	req.Messages[len(req.Messages)-1].Image = &entity.InlineImage{Data: []byte{1}, MimeType: "image/png"}

	text, searched := a.Augment(context.Background(), req)
	assert.Equal(t, "what is in this picture", text)
	assert.False(t, searched)
	assert.Zero(t, search.callCount())
}

func TestAugmentEarlierHistoryNeverTouched(t *testing.T) {
	t.Parallel()
	a := NewPromptAugmenter(&stubSearch{}, zerolog.Nop())
	req := chatReq(entity.ModeDeepThought, ProviderGemini, "question")

	_, _ = a.Augment(context.Background(), req)
	assert.Equal(t, "earlier turn", req.Messages[0].Content)
}

// The augmenter is deliberately stateless: calling it twice re-prepends.
// Single application per request is the orchestrator's contract.
func TestAugmentIsStatelessNotIdempotent(t *testing.T) {
	t.Parallel()
	a := NewPromptAugmenter(&stubSearch{}, zerolog.Nop())

	once, _ := a.Augment(context.Background(), chatReq(entity.ModeDeepThought, ProviderOllama, "q"))
	twice, _ := a.Augment(context.Background(), chatReq(entity.ModeDeepThought, ProviderOllama, once))
	assert.Equal(t, 2, strings.Count(twice, "<reasoning>"))
}

func TestAugmentScholarlySearches(t *testing.T) {
	t.Parallel()
	search := &stubSearch{results: []entity.SearchResult{{Title: "paper", Snippet: "findings", SourceHost: "arxiv.org"}}}
	a := NewPromptAugmenter(search, zerolog.Nop())

	text, searched := a.Augment(context.Background(), chatReq(entity.ModeScholarly, ProviderOllama, "study"))
	assert.True(t, searched)
	assert.Contains(t, text, "arxiv.org")
}
