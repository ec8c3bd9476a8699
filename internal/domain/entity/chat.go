package entity

// Role identifies who authored a message in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects which augmentation pipeline runs before dispatch.
type Mode string

const (
	ModePlain       Mode = "plain"
	ModeBrowser     Mode = "browser"
	ModeDeepThought Mode = "deep_thought"
	ModeAnalysis    Mode = "analysis"
	ModeVision      Mode = "vision"
	ModeScholarly   Mode = "scholarly"
)

// InlineImage carries image bytes attached to a message, already decoded
// from the transport encoding.
type InlineImage struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// Message is one turn of the neutral conversation history. Only the last
// message of a request is ever rewritten by augmentation.
type Message struct {
	Role    Role         `json:"role"`
	Content string       `json:"content"`
	Image   *InlineImage `json:"image,omitempty"`
}

// ChatRequest is the inbound chat payload after transport-level parsing.
type ChatRequest struct {
	Messages      []Message `json:"messages"`
	Provider      string    `json:"provider"` // e.g. "gemini", "ollama"
	Model         string    `json:"model"`
	Mode          Mode      `json:"mode"`
	SmartRouter   bool      `json:"smart_router_enabled"`
	Tier          string    `json:"tier,omitempty"` // preference tier when smart routing
	FallbackModel string    `json:"fallback_model,omitempty"`
	Temperature   float32   `json:"temperature"`
	MaxTokens     int32     `json:"max_tokens"`

	// AcknowledgeRisk confirms a critical-risk estimate; without it the
	// handler refuses to dispatch such requests.
	AcknowledgeRisk bool `json:"acknowledge_risk,omitempty"`
}

// LastMessage returns a pointer to the final history entry, the only one
// augmentation may rewrite.
func (r *ChatRequest) LastMessage() *Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return &r.Messages[len(r.Messages)-1]
}

// HasImage reports whether the request should be routed to a vision-capable
// operation instead of plain text completion.
func (r *ChatRequest) HasImage() bool {
	last := r.LastMessage()
	return last != nil && last.Image != nil
}

// ChatOptions are the per-call generation knobs handed to an adapter.
type ChatOptions struct {
	Temperature float32
	MaxTokens   int32
	Grounding   bool // enable the backend's native search-grounding tool, if any
}

// ImagePayload is a generated image returned by an adapter.
type ImagePayload struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mime_type"`
}

// ProviderResponse is what the orchestration layer hands back up to the
// delivery layer: text or an image, never both.
type ProviderResponse struct {
	Text       string        `json:"response,omitempty"`
	Image      *ImagePayload `json:"image,omitempty"`
	ModelUsed  string        `json:"model"`
	Info       string        `json:"info,omitempty"`
	TokenCount int           `json:"token_count,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
}

// StreamChunk is one fragment of a streaming completion. A non-nil Err
// terminates the sequence; the producer closes the channel afterwards.
type StreamChunk struct {
	Content string
	Done    bool
	Tokens  int // total token count, populated on the final chunk only
	Err     error
}

// SearchResult is one hit from the external search collaborator. Consumed
// only by the augmenter, never persisted.
type SearchResult struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	Snippet    string `json:"snippet"`
	SourceHost string `json:"source_host"`
}
