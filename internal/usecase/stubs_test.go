package usecase

import (
	"context"
	"sync"

	"relay-core/internal/domain/entity"
)

// stubSearch returns canned results and counts invocations.
type stubSearch struct {
	mu      sync.Mutex
	results []entity.SearchResult
	calls   int
}

func (s *stubSearch) Search(ctx context.Context, query string) []entity.SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.results
}

func (s *stubSearch) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubProvider answers from fixed fields and counts chat calls.
type stubProvider struct {
	mu        sync.Mutex
	name      string
	text      string
	tokens    int
	err       error
	chatCalls int
	lastText  string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Chat(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatCalls++
	if len(history) > 0 {
		p.lastText = history[len(history)-1].Content
	}
	if p.err != nil {
		return "", 0, p.err
	}
	return p.text, p.tokens, nil
}

func (p *stubProvider) Stream(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (<-chan entity.StreamChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan entity.StreamChunk, 2)
	ch <- entity.StreamChunk{Content: p.text}
	ch <- entity.StreamChunk{Done: true, Tokens: p.tokens}
	close(ch)
	return ch, nil
}

func (p *stubProvider) Vision(ctx context.Context, prompt string, image []byte, mimeType, model string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

func (p *stubProvider) GenerateImage(ctx context.Context, prompt, model string) (*entity.ImagePayload, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &entity.ImagePayload{Base64: "aGk=", MimeType: "image/png"}, nil
}

func (p *stubProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{p.name + "-model"}, nil
}

func (p *stubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chatCalls
}

func (p *stubProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastText
}

// stubPrefs serves a fixed preference per tier.
type stubPrefs struct {
	prefs map[entity.Tier]entity.ModelPreference
}

func (s *stubPrefs) GetPreference(ctx context.Context, tier entity.Tier) (entity.ModelPreference, error) {
	return s.prefs[tier], nil
}

func (s *stubPrefs) SetPreference(ctx context.Context, tier entity.Tier, pref entity.ModelPreference) error {
	if s.prefs == nil {
		s.prefs = map[entity.Tier]entity.ModelPreference{}
	}
	s.prefs[tier] = pref
	return nil
}

// stubUsage records increments in memory.
type stubUsage struct {
	mu       sync.Mutex
	tokens   int64
	requests int64
}

func (s *stubUsage) RecordUsage(ctx context.Context, model string, tokens int, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens += int64(tokens)
	s.requests++
	return nil
}

func (s *stubUsage) Snapshot(ctx context.Context) (entity.UsageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.UsageSnapshot{TokensConsumed: s.tokens, RequestCount: s.requests}, nil
}

func (s *stubUsage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens, s.requests = 0, 0
	return nil
}

func quotaErr(provider string) error {
	return entity.NewProviderError(entity.KindQuota, provider, "status 429: quota exceeded", nil)
}

func authErr(provider string) error {
	return entity.NewProviderError(entity.KindAuth, provider, "status 401: invalid api key", nil)
}

func networkErr(provider string) error {
	return entity.NewProviderError(entity.KindNetwork, provider, "connection refused", nil)
}
