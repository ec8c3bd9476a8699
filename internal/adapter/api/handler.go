package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"relay-core/internal/domain/entity"
	"relay-core/internal/domain/repository"
)

// ChatService is the orchestration surface the delivery layer consumes.
type ChatService interface {
	Chat(ctx context.Context, req *entity.ChatRequest) (*entity.ProviderResponse, error)
	ChatStream(ctx context.Context, req *entity.ChatRequest) (<-chan entity.StreamChunk, string, error)
	GenerateImage(ctx context.Context, provider, prompt, model string) (*entity.ProviderResponse, error)
	ListModels(ctx context.Context) map[string][]string
	Estimate(complexity entity.Complexity, promptLength int) entity.CostEstimate
}

// PipelineService runs the waterfall role chain.
type PipelineService interface {
	Run(ctx context.Context, task string) *entity.WaterfallResult
}

// Handler maps HTTP requests onto the orchestration layer and business
// errors back onto status codes. Raw backend errors never leave here.
type Handler struct {
	chat     ChatService
	pipeline PipelineService
	prefs    repository.PreferenceStore
	usage    repository.UsageStore
	log      zerolog.Logger
}

func NewHandler(chat ChatService, pipeline PipelineService, prefs repository.PreferenceStore, usage repository.UsageStore, log zerolog.Logger) *Handler {
	return &Handler{chat: chat, pipeline: pipeline, prefs: prefs, usage: usage, log: log}
}

// Wire shapes. Images travel base64-encoded over the transport boundary.
type wireMessage struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	ImageBase64 string `json:"image_base64,omitempty"`
	ImageMime   string `json:"image_mime,omitempty"`
}

type chatPayload struct {
	Messages        []wireMessage `json:"messages"`
	Provider        string        `json:"provider"`
	Model           string        `json:"model"`
	Mode            string        `json:"mode"`
	SmartRouter     bool          `json:"smart_router_enabled"`
	Tier            string        `json:"tier"`
	FallbackModel   string        `json:"fallback_model"`
	Temperature     float32       `json:"temperature"`
	MaxTokens       int32         `json:"max_tokens"`
	Complexity      string        `json:"complexity"`
	AcknowledgeRisk bool          `json:"acknowledge_risk"`
}

func (p *chatPayload) toRequest() (*entity.ChatRequest, error) {
	req := &entity.ChatRequest{
		Provider:        p.Provider,
		Model:           p.Model,
		Mode:            entity.Mode(p.Mode),
		SmartRouter:     p.SmartRouter,
		Tier:            p.Tier,
		FallbackModel:   p.FallbackModel,
		Temperature:     p.Temperature,
		MaxTokens:       p.MaxTokens,
		AcknowledgeRisk: p.AcknowledgeRisk,
	}
	if req.Mode == "" {
		req.Mode = entity.ModePlain
	}
	for _, m := range p.Messages {
		msg := entity.Message{Role: entity.Role(m.Role), Content: m.Content}
		if m.ImageBase64 != "" {
			data, err := base64.StdEncoding.DecodeString(m.ImageBase64)
			if err != nil {
				return nil, err
			}
			mime := m.ImageMime
			if mime == "" {
				mime = "image/png"
			}
			msg.Image = &entity.InlineImage{Data: data, MimeType: mime}
		}
		req.Messages = append(req.Messages, msg)
	}
	return req, nil
}

// HandleChat serves one orchestrated completion.
func (h *Handler) HandleChat(c *fiber.Ctx) error {
	var payload chatPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req, err := payload.toRequest()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid image encoding"})
	}

	// Gate expensive calls: a critical-risk estimate needs an explicit
	// acknowledgement before it is dispatched.
	if last := req.LastMessage(); last != nil && payload.Complexity != "" {
		est := h.chat.Estimate(entity.Complexity(payload.Complexity), len(last.Content))
		if est.RiskLevel == entity.RiskCritical && !req.AcknowledgeRisk {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":    entity.ErrConfirmRequired.Error(),
				"estimate": est,
			})
		}
	}

	reqID := uuid.NewString()
	resp, err := h.chat.Chat(c.Context(), req)
	if err != nil {
		return h.errorResponse(c, reqID, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleChatStream serves NDJSON fragments until the backend finishes or
// the client goes away.
func (h *Handler) HandleChatStream(c *fiber.Ctx) error {
	var payload chatPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req, err := payload.toRequest()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid image encoding"})
	}

	// The stream outlives the handler; it gets its own lifetime, cancelled
	// the moment a write to the client fails.
	ctx, cancel := context.WithCancel(context.Background())
	ch, model, err := h.chat.ChatStream(ctx, req)
	if err != nil {
		cancel()
		return h.errorResponse(c, uuid.NewString(), err)
	}

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		enc := json.NewEncoder(w)
		for chunk := range ch {
			if chunk.Err != nil {
				_ = enc.Encode(fiber.Map{"error": userMessage(chunk.Err)})
				_ = w.Flush()
				return
			}
			line := fiber.Map{"content": chunk.Content}
			if chunk.Done {
				line = fiber.Map{"done": true, "model": model}
			}
			if err := enc.Encode(line); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// Client disconnected: cancel upstream so no further
				// fragments are produced or billed.
				return
			}
		}
	}))
	return nil
}

type imagePayload struct {
	Provider string `json:"provider"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
}

// HandleImage serves image generation with relay fallback.
func (h *Handler) HandleImage(c *fiber.Ctx) error {
	var payload imagePayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if payload.Provider == "" {
		payload.Provider = "gemini"
	}

	resp, err := h.chat.GenerateImage(c.Context(), payload.Provider, payload.Prompt, payload.Model)
	if err != nil {
		return h.errorResponse(c, uuid.NewString(), err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

type waterfallPayload struct {
	Task string `json:"task"`
}

// HandleWaterfall runs the four-stage role chain and always returns the
// partial results, even when a stage halted it.
func (h *Handler) HandleWaterfall(c *fiber.Ctx) error {
	var payload waterfallPayload
	if err := c.BodyParser(&payload); err != nil || payload.Task == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "task is required"})
	}

	result := h.pipeline.Run(c.Context(), payload.Task)
	status := fiber.StatusOK
	if result.FailedStage != "" {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(result)
}

type estimatePayload struct {
	Complexity   string `json:"complexity"`
	PromptLength int    `json:"prompt_length"`
}

func (h *Handler) HandleEstimate(c *fiber.Ctx) error {
	var payload estimatePayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if payload.PromptLength < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "prompt_length must be non-negative"})
	}
	est := h.chat.Estimate(entity.Complexity(payload.Complexity), payload.PromptLength)
	return c.Status(fiber.StatusOK).JSON(est)
}

func (h *Handler) HandleListModels(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.chat.ListModels(c.Context()))
}

func (h *Handler) HandleGetPreference(c *fiber.Ctx) error {
	tier := entity.Tier(c.Params("tier"))
	pref, err := h.prefs.GetPreference(c.Context(), tier)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(pref)
}

func (h *Handler) HandleSetPreference(c *fiber.Ctx) error {
	tier := entity.Tier(c.Params("tier"))
	var pref entity.ModelPreference
	if err := c.BodyParser(&pref); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.prefs.SetPreference(c.Context(), tier, pref); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) HandleUsage(c *fiber.Ctx) error {
	snap, err := h.usage.Snapshot(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "usage snapshot unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(snap)
}

func (h *Handler) HandleUsageReset(c *fiber.Ctx) error {
	if err := h.usage.Reset(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "usage reset failed"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// errorResponse maps the taxonomy onto status codes with human-readable
// messages. The raw backend error goes to the log, never the client.
func (h *Handler) errorResponse(c *fiber.Ctx, reqID string, err error) error {
	kind := entity.KindOf(err)
	h.log.Error().Err(err).Str("request_id", reqID).Str("kind", string(kind)).Msg("request failed")

	status := fiber.StatusInternalServerError
	switch kind {
	case entity.KindValidation, entity.KindUnsupported:
		status = fiber.StatusBadRequest
	case entity.KindQuota:
		status = fiber.StatusTooManyRequests
	case entity.KindAuth, entity.KindOverloaded, entity.KindNetwork, entity.KindNoImage:
		status = fiber.StatusBadGateway
	case entity.KindCancelled:
		status = fiber.StatusRequestTimeout
	}
	return c.Status(status).JSON(fiber.Map{"error": userMessage(err), "details": reqID})
}

// userMessage hides backend wording behind stable, friendly phrasing.
func userMessage(err error) string {
	switch entity.KindOf(err) {
	case entity.KindValidation:
		return err.Error()
	case entity.KindAuth:
		return "the backend rejected our credentials; check the server configuration"
	case entity.KindQuota:
		return "all configured models are over quota right now; try again shortly"
	case entity.KindOverloaded:
		return "the model backend is overloaded; try again shortly"
	case entity.KindNetwork:
		return "could not reach the model backend"
	case entity.KindNoImage:
		return "no image could be generated for this prompt"
	case entity.KindCancelled:
		return "request cancelled"
	case entity.KindUnsupported:
		return err.Error()
	}
	return "internal gateway error"
}
