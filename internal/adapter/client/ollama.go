package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relay-core/internal/domain/entity"
)

// OllamaProvider is the local inference daemon adapter. Plain JSON over
// net/http; no SDK exists and none is needed.
type OllamaProvider struct {
	client  *http.Client
	baseURL string
}

func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// Chat executes one non-streaming completion against /api/chat.
func (p *OllamaProvider) Chat(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (string, int, error) {
	res, err := p.post(ctx, "/api/chat", p.buildRequest(history, model, opts, false))
	if err != nil {
		return "", 0, err
	}
	defer res.Body.Close()

	var resp ollamaChatResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", 0, entity.NewProviderError(entity.KindInternal, p.Name(), "decode response: "+err.Error(), err)
	}
	return resp.Message.Content, resp.PromptEvalCount + resp.EvalCount, nil
}

// Stream reads the daemon's NDJSON stream, one fragment per line, until
// the done marker. Cancelling ctx closes the connection.
func (p *OllamaProvider) Stream(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (<-chan entity.StreamChunk, error) {
	res, err := p.post(ctx, "/api/chat", p.buildRequest(history, model, opts, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan entity.StreamChunk)
	go func() {
		defer close(ch)
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var line ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				continue
			}
			if line.Done {
				select {
				case ch <- entity.StreamChunk{Done: true, Tokens: line.PromptEvalCount + line.EvalCount}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case ch <- entity.StreamChunk{Content: line.Message.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- entity.StreamChunk{Err: p.classify(err)}
			return
		}
		// Body drained without a done marker; the stream still completed,
		// so consumers get their terminal chunk.
		select {
		case ch <- entity.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// Vision attaches the image as base64 on the final message, the daemon's
// multimodal convention.
func (p *OllamaProvider) Vision(ctx context.Context, prompt string, image []byte, mimeType, model string) (string, error) {
	body := ollamaChatRequest{
		Model: model,
		Messages: []ollamaMessage{{
			Role:    "user",
			Content: prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
		Stream: false,
	}

	res, err := p.post(ctx, "/api/chat", body)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var resp ollamaChatResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", entity.NewProviderError(entity.KindInternal, p.Name(), "decode response: "+err.Error(), err)
	}
	return resp.Message.Content, nil
}

// GenerateImage is not a capability the daemon offers.
func (p *OllamaProvider) GenerateImage(ctx context.Context, prompt, model string) (*entity.ImagePayload, error) {
	return nil, entity.NewProviderError(entity.KindUnsupported, p.Name(), "image generation not supported", nil)
}

// ListModels reads the locally installed model tags.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, entity.NewProviderError(entity.KindInternal, p.Name(), err.Error(), err)
	}

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.classify(err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return nil, p.statusError(res)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(res.Body).Decode(&tags); err != nil {
		return nil, entity.NewProviderError(entity.KindInternal, p.Name(), "decode tags: "+err.Error(), err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (p *OllamaProvider) buildRequest(history []entity.Message, model string, opts entity.ChatOptions, stream bool) ollamaChatRequest {
	msgs := make([]ollamaMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}

	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	return ollamaChatRequest{Model: model, Messages: msgs, Stream: stream, Options: options}
}

func (p *OllamaProvider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, entity.NewProviderError(entity.KindInternal, p.Name(), "marshal request: "+err.Error(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, entity.NewProviderError(entity.KindInternal, p.Name(), "build request: "+err.Error(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.classify(err)
	}
	if res.StatusCode >= 300 {
		defer res.Body.Close()
		return nil, p.statusError(res)
	}
	return res, nil
}

func (p *OllamaProvider) statusError(res *http.Response) error {
	b, _ := io.ReadAll(res.Body)
	kind := entity.ClassifyStatus(res.StatusCode)
	return entity.NewProviderError(kind, p.Name(), fmt.Sprintf("status %d: %s", res.StatusCode, strings.TrimSpace(string(b))), nil)
}

// classify maps transport failures; the daemon being down is the common
// case and must read as a retryable network error.
func (p *OllamaProvider) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return entity.NewProviderError(entity.KindCancelled, p.Name(), "request cancelled", err)
	}
	return entity.NewProviderError(entity.KindNetwork, p.Name(), err.Error(), err)
}
