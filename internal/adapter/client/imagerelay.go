package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relay-core/internal/domain/entity"
)

// ImageRelayProvider is the image-fallback adapter: a prompt-in-URL
// image endpoint that answers with raw image bytes. It only implements
// image generation; every other capability is unsupported.
type ImageRelayProvider struct {
	client  *http.Client
	baseURL string
}

func NewImageRelayProvider(baseURL string, timeout time.Duration) *ImageRelayProvider {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &ImageRelayProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *ImageRelayProvider) Name() string { return "image-relay" }

func (p *ImageRelayProvider) Chat(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (string, int, error) {
	return "", 0, p.unsupported("chat completion")
}

func (p *ImageRelayProvider) Stream(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (<-chan entity.StreamChunk, error) {
	return nil, p.unsupported("streaming")
}

func (p *ImageRelayProvider) Vision(ctx context.Context, prompt string, image []byte, mimeType, model string) (string, error) {
	return "", p.unsupported("vision")
}

// GenerateImage fetches {base}/prompt/{query} and wraps the body bytes.
func (p *ImageRelayProvider) GenerateImage(ctx context.Context, prompt, model string) (*entity.ImagePayload, error) {
	endpoint := p.baseURL + "/prompt/" + url.PathEscape(prompt)
	if model != "" {
		endpoint += "?model=" + url.QueryEscape(model)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, entity.NewProviderError(entity.KindInternal, p.Name(), err.Error(), err)
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, entity.NewProviderError(entity.KindCancelled, p.Name(), "request cancelled", err)
		}
		return nil, entity.NewProviderError(entity.KindNetwork, p.Name(), err.Error(), err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		kind := entity.ClassifyStatus(res.StatusCode)
		return nil, entity.NewProviderError(kind, p.Name(), fmt.Sprintf("status %d", res.StatusCode), nil)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, entity.NewProviderError(entity.KindNetwork, p.Name(), "read image body: "+err.Error(), err)
	}
	if len(data) == 0 {
		return nil, entity.NewProviderError(entity.KindNoImage, p.Name(), "empty image body", entity.ErrNoImageProduced)
	}

	mime := res.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return &entity.ImagePayload{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mime,
	}, nil
}

func (p *ImageRelayProvider) ListModels(ctx context.Context) ([]string, error) {
	return nil, p.unsupported("model listing")
}

func (p *ImageRelayProvider) unsupported(op string) error {
	return entity.NewProviderError(entity.KindUnsupported, p.Name(), op+" not supported", nil)
}
