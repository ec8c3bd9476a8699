package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"relay-core/internal/domain/entity"
)

// GeminiProvider is the cloud-model adapter backed by the genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider builds the adapter against the Gemini API backend.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: c}, nil
}

// NewGeminiProviderFromClient wraps an existing genai client, used when
// several adapters share one connection.
func NewGeminiProviderFromClient(c *genai.Client) *GeminiProvider {
	return &GeminiProvider{client: c}
}

// Client exposes the underlying genai client for sibling adapters
// (embedder) built on the same connection.
func (g *GeminiProvider) Client() *genai.Client { return g.client }

func (g *GeminiProvider) Name() string { return "gemini" }

// Chat issues one non-streaming completion over the converted history.
func (g *GeminiProvider) Chat(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (string, int, error) {
	contents, config := g.convert(history, opts)

	result, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", 0, g.classify(err)
	}

	text := result.Text()
	if text == "" {
		return "", 0, entity.NewProviderError(entity.KindInternal, g.Name(), "empty completion", nil)
	}

	tokens := 0
	if result.UsageMetadata != nil {
		tokens = int(result.UsageMetadata.TotalTokenCount)
	}
	return text, tokens, nil
}

// Stream yields completion fragments as the backend produces them. The
// channel closes when the backend finishes or ctx is cancelled; the
// sequence is not restartable.
func (g *GeminiProvider) Stream(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (<-chan entity.StreamChunk, error) {
	contents, config := g.convert(history, opts)

	ch := make(chan entity.StreamChunk)
	go func() {
		defer close(ch)
		var tokens int
		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				select {
				case ch <- entity.StreamChunk{Err: g.classify(err)}:
				case <-ctx.Done():
				}
				return
			}
			if resp.UsageMetadata != nil {
				tokens = int(resp.UsageMetadata.TotalTokenCount)
			}
			fragment := resp.Text()
			if fragment == "" {
				continue
			}
			select {
			case ch <- entity.StreamChunk{Content: fragment}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- entity.StreamChunk{Done: true, Tokens: tokens}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// Vision sends the prompt with an inline image part.
func (g *GeminiProvider) Vision(ctx context.Context, prompt string, image []byte, mimeType, model string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", g.classify(err)
	}
	return result.Text(), nil
}

// GenerateImage requests TEXT+IMAGE modalities and extracts the first
// inline blob from the answer.
func (g *GeminiProvider) GenerateImage(ctx context.Context, prompt, model string) (*entity.ImagePayload, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	result, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return nil, g.classify(err)
	}

	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &entity.ImagePayload{
					Base64:   base64.StdEncoding.EncodeToString(part.InlineData.Data),
					MimeType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}
	return nil, entity.NewProviderError(entity.KindNoImage, g.Name(), "response contained no image payload", entity.ErrNoImageProduced)
}

// ListModels returns the backend's available model identifiers.
func (g *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	for model, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, g.classify(err)
		}
		names = append(names, strings.TrimPrefix(model.Name, "models/"))
	}
	return names, nil
}

// convert maps the neutral history to genai contents: system messages
// become the system instruction, assistant turns take the model role.
func (g *GeminiProvider) convert(history []entity.Message, opts entity.ChatOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = opts.MaxTokens
	}
	if opts.Grounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	var contents []*genai.Content
	for _, m := range history {
		switch m.Role {
		case entity.RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case entity.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, config
}

// classify maps SDK failures into the shared taxonomy: the API status
// code is trusted first, message wording only when no code is available.
func (g *GeminiProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return entity.NewProviderError(entity.KindCancelled, g.Name(), "request cancelled", err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		kind := entity.ClassifyStatus(apiErr.Code)
		if kind == entity.KindInternal {
			kind = entity.ClassifyMessage(apiErr.Message)
		}
		return entity.NewProviderError(kind, g.Name(), fmt.Sprintf("status %d: %s", apiErr.Code, apiErr.Message), err)
	}

	return entity.NewProviderError(entity.ClassifyMessage(err.Error()), g.Name(), err.Error(), err)
}
