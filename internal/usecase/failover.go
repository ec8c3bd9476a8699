package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"relay-core/internal/domain/entity"
	"relay-core/internal/domain/repository"
)

// Known provider identifiers. New backends are added as adapter variants,
// not by extending branch chains elsewhere.
const (
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderImageRelay = "image-relay"
)

// InfoFallbackEngaged is the soft note attached when a fallback answered.
const InfoFallbackEngaged = "fallback engaged"

// candidate is one provider/model pair in the failover order.
type candidate struct {
	provider repository.Provider
	model    string
}

// RouteOptions carries dispatch context the router cannot derive from the
// request alone.
type RouteOptions struct {
	// AugmentedText is the last-message text after augmentation; empty
	// means dispatch the raw last message.
	AugmentedText string
	// AlreadyGrounded suppresses the quota-fallback re-search when the
	// mode's first pass already performed one.
	AlreadyGrounded bool
}

// FailoverRouter attempts an ordered candidate list, classifies failures,
// and returns the first success or an aggregated failure. This is a
// two-tier waterfall: one fallback hop, never unbounded retry.
type FailoverRouter struct {
	providers map[string]repository.Provider
	prefs     repository.PreferenceStore
	usage     repository.UsageStore
	augmenter *PromptAugmenter
	estimator *CostEstimator
	log       zerolog.Logger
}

func NewFailoverRouter(
	providers map[string]repository.Provider,
	prefs repository.PreferenceStore,
	usage repository.UsageStore,
	augmenter *PromptAugmenter,
	estimator *CostEstimator,
	log zerolog.Logger,
) *FailoverRouter {
	return &FailoverRouter{
		providers: providers,
		prefs:     prefs,
		usage:     usage,
		augmenter: augmenter,
		estimator: estimator,
		log:       log,
	}
}

// Provider resolves a registered adapter by name.
func (r *FailoverRouter) Provider(name string) (repository.Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownProvider, name)
	}
	return p, nil
}

// Providers returns the registered adapter set.
func (r *FailoverRouter) Providers() map[string]repository.Provider {
	return r.providers
}

// Execute dispatches the request against the resolved candidate order:
// the first success wins, a fatal failure propagates immediately, and a
// retryable primary failure earns exactly one fallback attempt.
func (r *FailoverRouter) Execute(ctx context.Context, req *entity.ChatRequest, opts RouteOptions) (*entity.ProviderResponse, error) {
	candidates, err := r.resolveCandidates(ctx, req)
	if err != nil {
		return nil, err
	}

	primary := candidates[0]
	resp, primaryErr := r.dispatch(ctx, primary, req, opts.AugmentedText)
	if primaryErr == nil {
		resp.ModelUsed = primary.model
		r.record(primary.model, resp.TokenCount)
		return resp, nil
	}

	kind := entity.KindOf(primaryErr)
	if kind == entity.KindCancelled {
		return nil, primaryErr
	}
	if !entity.IsRetryable(primaryErr) || len(candidates) < 2 {
		r.log.Warn().Err(primaryErr).Str("model", primary.model).Str("kind", string(kind)).
			Msg("primary failed fatally or no fallback configured")
		return nil, primaryErr
	}

	fallback := candidates[1]
	r.log.Info().Str("primary", primary.model).Str("fallback", fallback.model).
		Str("kind", string(kind)).Msg("primary exhausted, shifting to fallback")

	text := opts.AugmentedText
	// A quota rejection usually means the fallback is a weaker model;
	// give it search context unless the first pass already grounded.
	if kind == entity.KindQuota && !opts.AlreadyGrounded && r.augmenter != nil && !req.HasImage() {
		if grounded, searched := r.augmenter.Ground(ctx, text); searched {
			text = grounded
		}
	}

	resp, fallbackErr := r.dispatch(ctx, fallback, req, text)
	if fallbackErr != nil {
		return nil, fmt.Errorf("all candidates failed: primary %s (%v); fallback %s (%v)",
			primary.model, primaryErr, fallback.model, fallbackErr)
	}

	resp.ModelUsed = fallback.model
	resp.Info = InfoFallbackEngaged
	r.record(fallback.model, resp.TokenCount)
	return resp, nil
}

// ExecuteTier runs a single prompt through a tier's preferred models.
// Used by the waterfall pipeline and any caller routing by role rather
// than by explicit provider.
func (r *FailoverRouter) ExecuteTier(ctx context.Context, tier entity.Tier, prompt string) (*entity.ProviderResponse, error) {
	req := &entity.ChatRequest{
		Messages:    []entity.Message{{Role: entity.RoleUser, Content: prompt}},
		Mode:        entity.ModePlain,
		SmartRouter: true,
		Tier:        string(tier),
	}
	return r.Execute(ctx, req, RouteOptions{AugmentedText: prompt})
}

// Stream opens a streaming completion against the primary candidate only.
// Failover on a mid-stream failure would replay partial output, so the
// stream path does not shift; transport errors surface as chunk errors.
func (r *FailoverRouter) Stream(ctx context.Context, req *entity.ChatRequest, opts RouteOptions) (<-chan entity.StreamChunk, string, error) {
	candidates, err := r.resolveCandidates(ctx, req)
	if err != nil {
		return nil, "", err
	}

	primary := candidates[0]
	history := historyWithText(req, opts.AugmentedText)
	ch, err := primary.provider.Stream(ctx, history, primary.model, chatOptions(req))
	if err != nil {
		return nil, "", err
	}
	return ch, primary.model, nil
}

// RecordUsage books one completed call against the usage counters.
// Streams call it after draining to completion; cancelled streams are
// never recorded.
func (r *FailoverRouter) RecordUsage(model string, tokens int) {
	r.record(model, tokens)
}

func (r *FailoverRouter) resolveCandidates(ctx context.Context, req *entity.ChatRequest) ([]candidate, error) {
	if req.SmartRouter {
		tier := entity.Tier(req.Tier)
		if tier == "" {
			tier = entity.TierExecutor
		}
		pref, err := r.prefs.GetPreference(ctx, tier)
		if err != nil {
			return nil, fmt.Errorf("resolve tier preference: %w", err)
		}
		primary, err := r.Provider(pref.Primary.Provider)
		if err != nil {
			return nil, err
		}
		out := []candidate{{provider: primary, model: pref.Primary.Model}}
		if pref.AutoShift && pref.Fallback.Model != "" {
			if fb, err := r.Provider(pref.Fallback.Provider); err == nil {
				out = append(out, candidate{provider: fb, model: pref.Fallback.Model})
			}
		}
		return out, nil
	}

	p, err := r.Provider(req.Provider)
	if err != nil {
		return nil, err
	}
	out := []candidate{{provider: p, model: req.Model}}
	if req.FallbackModel != "" {
		out = append(out, candidate{provider: p, model: req.FallbackModel})
	}
	return out, nil
}

// dispatch routes one candidate call, choosing the vision operation when
// the request carries an inline image.
func (r *FailoverRouter) dispatch(ctx context.Context, c candidate, req *entity.ChatRequest, text string) (*entity.ProviderResponse, error) {
	if req.HasImage() {
		last := req.LastMessage()
		prompt := last.Content
		if text != "" {
			prompt = text
		}
		out, err := c.provider.Vision(ctx, prompt, last.Image.Data, last.Image.MimeType, c.model)
		if err != nil {
			return nil, err
		}
		return &entity.ProviderResponse{Text: out}, nil
	}

	history := historyWithText(req, text)
	out, tokens, err := c.provider.Chat(ctx, history, c.model, chatOptions(req))
	if err != nil {
		return nil, err
	}
	return &entity.ProviderResponse{Text: out, TokenCount: tokens}, nil
}

// record books a successful call. The request count moves for every
// success; calls that report no token count (vision, images) still count
// as requests.
func (r *FailoverRouter) record(model string, tokens int) {
	if r.usage == nil {
		return
	}
	cost := float64(tokens) / 1_000_000 * r.estimatorRate()
	// Booked on a background context: the request context may already be
	// done by the time the response is returned upward.
	go func() {
		if err := r.usage.RecordUsage(context.Background(), model, tokens, cost); err != nil {
			r.log.Warn().Err(err).Str("model", model).Msg("usage record failed")
		}
	}()
}

func (r *FailoverRouter) estimatorRate() float64 {
	if r.estimator == nil {
		return DefaultRatePerMillion
	}
	return r.estimator.ratePerMillion
}

// historyWithText clones the history with the last message replaced by
// the augmented text. Earlier entries are never altered.
func historyWithText(req *entity.ChatRequest, text string) []entity.Message {
	history := make([]entity.Message, len(req.Messages))
	copy(history, req.Messages)
	if text != "" && len(history) > 0 {
		history[len(history)-1].Content = text
	}
	return history
}

func chatOptions(req *entity.ChatRequest) entity.ChatOptions {
	return entity.ChatOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}
