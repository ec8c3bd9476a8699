package repository

import (
	"context"

	"relay-core/internal/domain/entity"
)

// Provider is the capability surface every backend adapter implements.
// Adapters classify their own failures into the entity error taxonomy;
// an unsupported capability returns a tagged unsupported error.
type Provider interface {
	Name() string
	Chat(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (text string, tokens int, err error)
	Stream(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (<-chan entity.StreamChunk, error)
	Vision(ctx context.Context, prompt string, image []byte, mimeType, model string) (string, error)
	GenerateImage(ctx context.Context, prompt, model string) (*entity.ImagePayload, error)
	ListModels(ctx context.Context) ([]string, error)
}

// SearchClient is the external web-search collaborator. Implementations
// must return an empty slice, never an error, past this boundary.
type SearchClient interface {
	Search(ctx context.Context, query string) []entity.SearchResult
}

// PreferenceStore persists per-tier model preferences.
type PreferenceStore interface {
	GetPreference(ctx context.Context, tier entity.Tier) (entity.ModelPreference, error)
	SetPreference(ctx context.Context, tier entity.Tier, pref entity.ModelPreference) error
}

// UsageStore tracks running usage counters. Increments are atomic
// relative to each other.
type UsageStore interface {
	RecordUsage(ctx context.Context, model string, tokens int, costUSD float64) error
	Snapshot(ctx context.Context) (entity.UsageSnapshot, error)
	Reset(ctx context.Context) error
}

// Embedder turns text into a vector for the semantic cache.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ResponseCache is the semantic response cache consulted for plain-mode
// chat before any provider call. Lookup also returns the prompt the hit
// was stored under so a judge can confirm the intent match.
type ResponseCache interface {
	Lookup(ctx context.Context, vector []float32) (*entity.ProviderResponse, string, error)
	Save(ctx context.Context, prompt string, resp *entity.ProviderResponse, vector []float32) error
}

// MatchJudge decides whether two prompts ask for the same thing. Used to
// guard borderline semantic-cache hits; errs on the side of a miss.
type MatchJudge interface {
	IsMatch(ctx context.Context, userPrompt, cachedPrompt string) bool
}
