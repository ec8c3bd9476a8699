package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"relay-core/internal/domain/entity"
	"relay-core/internal/domain/repository"
)

// InfoCacheHit is the note attached to responses answered from the
// semantic cache.
const InfoCacheHit = "served from semantic cache"

// Orchestrator ties the chat flow together: validate, estimate, cache
// lookup, augment once, route with failover, then book the result into
// the cache in the background.
type Orchestrator struct {
	router    *FailoverRouter
	augmenter *PromptAugmenter
	estimator *CostEstimator
	embedder  repository.Embedder
	cache     repository.ResponseCache
	judge     repository.MatchJudge
	log       zerolog.Logger
}

func NewOrchestrator(
	router *FailoverRouter,
	augmenter *PromptAugmenter,
	estimator *CostEstimator,
	embedder repository.Embedder,
	cache repository.ResponseCache,
	judge repository.MatchJudge,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		router:    router,
		augmenter: augmenter,
		estimator: estimator,
		embedder:  embedder,
		cache:     cache,
		judge:     judge,
		log:       log,
	}
}

// Estimate exposes the pure cost model to the delivery layer.
func (o *Orchestrator) Estimate(complexity entity.Complexity, promptLength int) entity.CostEstimate {
	return o.estimator.Estimate(complexity, promptLength)
}

// Chat runs one augmented, failover-routed completion.
func (o *Orchestrator) Chat(ctx context.Context, req *entity.ChatRequest) (*entity.ProviderResponse, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	prompt := req.LastMessage().Content
	est := o.estimator.Estimate(complexityFor(req.Mode), len(prompt))
	o.log.Debug().Int("estimated_tokens", est.EstimatedTokens).
		Str("risk", string(est.RiskLevel)).Str("mode", string(req.Mode)).
		Msg("dispatching chat request")

	// Plain text-only requests may be answered from the semantic cache.
	var vector []float32
	if o.cacheable(req) {
		var cached *entity.ProviderResponse
		cached, vector = o.cacheLookup(ctx, prompt)
		if cached != nil {
			return cached, nil
		}
	}

	// Augmentation runs exactly once per request, here. The augmenter
	// itself is stateless and would happily re-prepend if called twice.
	augmented, searched := o.augmenter.Augment(ctx, req)

	resp, err := o.router.Execute(ctx, req, RouteOptions{
		AugmentedText:   augmented,
		AlreadyGrounded: searched,
	})
	if err != nil {
		return nil, err
	}

	if vector != nil && resp.Text != "" {
		o.cacheSave(prompt, resp, vector)
	}
	return resp, nil
}

// ChatStream opens a streaming completion. The returned channel is
// closed by the producer; cancellation through ctx stops fragment
// production without booking usage for the cancelled call.
func (o *Orchestrator) ChatStream(ctx context.Context, req *entity.ChatRequest) (<-chan entity.StreamChunk, string, error) {
	if err := o.validate(req); err != nil {
		return nil, "", err
	}

	augmented, searched := o.augmenter.Augment(ctx, req)
	upstream, model, err := o.router.Stream(ctx, req, RouteOptions{
		AugmentedText:   augmented,
		AlreadyGrounded: searched,
	})
	if err != nil {
		return nil, "", err
	}

	out := make(chan entity.StreamChunk)
	go func() {
		defer close(out)
		var total int
		for chunk := range upstream {
			if chunk.Tokens > 0 {
				total = chunk.Tokens
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				return
			}
		}
		// Only a stream that ran to completion is booked.
		if ctx.Err() == nil {
			o.router.RecordUsage(model, total)
		}
	}()
	return out, model, nil
}

// GenerateImage asks the request's provider for an image and, when that
// fails retryably or yields no payload, shifts once to the image-relay
// backend.
func (o *Orchestrator) GenerateImage(ctx context.Context, provider, prompt, model string) (*entity.ProviderResponse, error) {
	if prompt == "" {
		return nil, entity.NewProviderError(entity.KindValidation, "", "image prompt is required", entity.ErrEmptyHistory)
	}
	p, err := o.router.Provider(provider)
	if err != nil {
		return nil, err
	}

	img, primaryErr := p.GenerateImage(ctx, prompt, model)
	if primaryErr == nil {
		o.router.RecordUsage(model, 0)
		return &entity.ProviderResponse{Image: img, ModelUsed: model}, nil
	}

	kind := entity.KindOf(primaryErr)
	if kind == entity.KindCancelled {
		return nil, primaryErr
	}
	// NoImageProduced is fatal for the call but not for the pipeline when
	// an alternative image backend exists.
	relay, relayErr := o.router.Provider(ProviderImageRelay)
	if relayErr != nil || provider == ProviderImageRelay {
		return nil, primaryErr
	}
	if kind != entity.KindNoImage && !entity.IsRetryable(primaryErr) {
		return nil, primaryErr
	}

	o.log.Info().Str("provider", provider).Str("kind", string(kind)).
		Msg("image generation failed, shifting to image relay")
	img, err = relay.GenerateImage(ctx, prompt, "")
	if err != nil {
		return nil, fmt.Errorf("all image backends failed: %s (%v); image-relay (%v)", provider, primaryErr, err)
	}
	o.router.RecordUsage(ProviderImageRelay, 0)
	return &entity.ProviderResponse{Image: img, ModelUsed: ProviderImageRelay, Info: InfoFallbackEngaged}, nil
}

// ListModels aggregates model identifiers across every registered
// provider, best effort per backend.
func (o *Orchestrator) ListModels(ctx context.Context) map[string][]string {
	out := make(map[string][]string)
	for name, p := range o.router.Providers() {
		models, err := p.ListModels(ctx)
		if err != nil {
			o.log.Warn().Err(err).Str("provider", name).Msg("model listing failed")
			continue
		}
		sort.Strings(models)
		out[name] = models
	}
	return out
}

// validate enforces the core's own invariants; schema shape is the
// delivery layer's concern.
func (o *Orchestrator) validate(req *entity.ChatRequest) error {
	if len(req.Messages) == 0 {
		return entity.NewProviderError(entity.KindValidation, "", entity.ErrEmptyHistory.Error(), entity.ErrEmptyHistory)
	}
	if !req.SmartRouter {
		if req.Model == "" {
			return entity.NewProviderError(entity.KindValidation, "", entity.ErrMissingModel.Error(), entity.ErrMissingModel)
		}
		if _, err := o.router.Provider(req.Provider); err != nil {
			return entity.NewProviderError(entity.KindValidation, "", err.Error(), err)
		}
	}
	return nil
}

func (o *Orchestrator) cacheable(req *entity.ChatRequest) bool {
	return o.cache != nil && o.embedder != nil && req.Mode == entity.ModePlain && !req.HasImage()
}

func (o *Orchestrator) cacheLookup(ctx context.Context, prompt string) (*entity.ProviderResponse, []float32) {
	vector, err := o.embedder.CreateEmbedding(ctx, prompt)
	if err != nil {
		o.log.Debug().Err(err).Msg("embedding failed, skipping semantic cache")
		return nil, nil
	}
	cached, cachedPrompt, err := o.cache.Lookup(ctx, vector)
	if err != nil || cached == nil {
		return nil, vector
	}
	if o.judge != nil && !o.judge.IsMatch(ctx, prompt, cachedPrompt) {
		o.log.Debug().Msg("cache hit rejected by intent judge")
		return nil, vector
	}
	cached.Cached = true
	cached.Info = InfoCacheHit
	return cached, vector
}

func (o *Orchestrator) cacheSave(prompt string, resp *entity.ProviderResponse, vector []float32) {
	// Background context: the request context may expire before the save
	// lands (the async bookkeeping never blocks the response path).
	go func() {
		if err := o.cache.Save(context.Background(), prompt, resp, vector); err != nil {
			o.log.Debug().Err(err).Msg("semantic cache save failed")
		}
	}()
}

// complexityFor maps a mode to the coarse complexity class used for the
// advisory estimate.
func complexityFor(mode entity.Mode) entity.Complexity {
	switch mode {
	case entity.ModeDeepThought, entity.ModeAnalysis:
		return entity.ComplexityHigh
	case entity.ModeBrowser, entity.ModeScholarly:
		return entity.ComplexityMedium
	}
	return entity.ComplexityLow
}
