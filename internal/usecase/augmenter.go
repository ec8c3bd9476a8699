package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"relay-core/internal/domain/entity"
	"relay-core/internal/domain/repository"
)

// searchTopK is the number of grounding results folded into the prompt.
const searchTopK = 5

const deepThoughtPrefix = `Before giving your final answer, think through the problem step by step inside a <reasoning>...</reasoning> block. After the closing tag, give your final answer.

`

const analysisPrefix = `After your answer, append a structured knowledge graph of the key entities and relationships in your response, delimited exactly by <knowledge_graph> and </knowledge_graph>. Use one "node: <name>" line per entity and one "edge: <from> -> <to> : <relation>" line per relationship.

`

const graphSuffix = `

If your answer describes entities and relationships, also emit them as a <knowledge_graph>...</knowledge_graph> block at the very end.`

const noResultsNotice = "Web search returned no results for this query. Answer from general knowledge and say so if you are unsure.\n\nUser query: "

// PromptAugmenter rewrites the last user message according to the active
// mode before dispatch. It is stateless and never errors: internal
// failures degrade to the unaugmented text. It does not detect prior
// augmentation; the orchestrator is responsible for calling it exactly
// once per request.
type PromptAugmenter struct {
	search repository.SearchClient
	log    zerolog.Logger
}

func NewPromptAugmenter(search repository.SearchClient, log zerolog.Logger) *PromptAugmenter {
	return &PromptAugmenter{search: search, log: log}
}

// Augment returns the rewritten last-message text and whether a search
// call was made. Vision requests bypass text augmentation entirely.
func (a *PromptAugmenter) Augment(ctx context.Context, req *entity.ChatRequest) (string, bool) {
	last := req.LastMessage()
	if last == nil {
		return "", false
	}
	text := last.Content

	if req.Mode == entity.ModeVision || req.HasImage() {
		return text, false
	}

	searched := false
	switch req.Mode {
	case entity.ModeBrowser, entity.ModeScholarly:
		text, searched = a.Ground(ctx, text)
	case entity.ModeDeepThought:
		text = deepThoughtPrefix + text
	case entity.ModeAnalysis:
		text = analysisPrefix + text
	}

	// The graph suffix is provider-specific and always trails any
	// mode prefix, never interleaved.
	if req.Provider == ProviderGemini && req.Mode != entity.ModeAnalysis {
		text += graphSuffix
	}

	return text, searched
}

// Ground runs the search-grounding step alone: prepend retrieved snippets
// or the no-results notice to the query. Search failures are swallowed
// and the original text is returned unchanged. The second return reports
// whether the external search call happened at all.
func (a *PromptAugmenter) Ground(ctx context.Context, query string) (string, bool) {
	if a.search == nil {
		return query, false
	}

	results := a.search.Search(ctx, query)
	if len(results) > searchTopK {
		results = results[:searchTopK]
	}

	if len(results) == 0 {
		a.log.Debug().Str("query", query).Msg("search returned no results, adding neutral notice")
		return noResultsNotice + query, true
	}

	var b strings.Builder
	b.WriteString("Use the following web search results to ground your answer. Cite sources where relevant.\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "[%s] %s: %s\n", r.SourceHost, r.Title, r.Snippet)
	}
	b.WriteString("\nUser query: ")
	b.WriteString(query)
	return b.String(), true
}
