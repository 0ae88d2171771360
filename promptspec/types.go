// Package promptspec defines the uniform, provider-agnostic request
// description a user authors once (spec.md §3.1). A Document is a
// read-only input to translation: it is decoded once by the caller (§1,
// "configuration loading only" is out of scope — callers already have
// parsed JSON) and never mutated by the core (spec.md §3.5).
package promptspec

import (
	"encoding/json"
	"fmt"

	"github.com/specado/specado/value"
)

// ModelClass controls which fields of a Document are meaningful.
type ModelClass string

const (
	ModelClassChat           ModelClass = "Chat"
	ModelClassReasoningChat  ModelClass = "ReasoningChat"
	ModelClassVisionChat     ModelClass = "VisionChat"
	ModelClassAudioChat      ModelClass = "AudioChat"
	ModelClassMultimodalChat ModelClass = "MultimodalChat"
	ModelClassRAGChat        ModelClass = "RAGChat"
	ModelClassCompletion     ModelClass = "Completion"
	ModelClassEmbedding      ModelClass = "Embedding"
)

// IsChatFamily reports whether mc is one of the Chat-family classes that
// require a non-empty messages sequence (spec.md §3.1 invariants).
func (mc ModelClass) IsChatFamily() bool {
	switch mc {
	case ModelClassChat, ModelClassReasoningChat, ModelClassVisionChat,
		ModelClassAudioChat, ModelClassMultimodalChat, ModelClassRAGChat:
		return true
	default:
		return false
	}
}

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "System"
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
	RoleTool      Role = "Tool"
)

// Content holds a message's content, which may be a plain string or an
// ordered sequence of content parts (spec.md §3.1). It round-trips through
// whichever shape the input JSON used.
type Content struct {
	// Text holds the content when the JSON value was a plain string.
	Text string
	// Parts holds the content when the JSON value was an array; each
	// element is kept as a generic tagged value since content-part shapes
	// (text, image_url, input_audio, ...) are themselves provider- and
	// modality-specific and are not introspected by the core (§1 Non-goals:
	// "no content introspection of prompt text").
	Parts []*value.Value
	// isArray distinguishes an array Content from a string Content so
	// MarshalJSON round-trips the original shape.
	isArray bool
}

// IsArray reports whether the content was authored as an array of parts.
func (c Content) IsArray() bool { return c.isArray }

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.isArray {
		return json.Marshal(c.Parts)
	}

	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler, accepting either a string or
// an array.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.isArray = false

		return nil
	}

	var parts []*value.Value
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("promptspec: content must be a string or an array of parts: %w", err)
	}

	c.Parts = parts
	c.isArray = true

	return nil
}

// Message is one turn of the conversation (spec.md §3.1).
type Message struct {
	Role     Role              `json:"role"`
	Content  Content           `json:"content"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Tool describes a callable function the model may invoke (spec.md §3.1).
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	JSONSchema  json.RawMessage `json:"json_schema"`
}

// ToolChoice selects how the model should use tools: "auto", "required",
// or a named tool (spec.md §3.1).
type ToolChoice struct {
	Mode string `json:"-"`
	Name string `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.Mode == "name" {
		return json.Marshal(map[string]string{"name": tc.Name})
	}

	return json.Marshal(tc.Mode)
}

// UnmarshalJSON implements json.Unmarshaler.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.Mode = s

		return nil
	}

	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("promptspec: invalid tool_choice: %w", err)
	}

	tc.Mode = "name"
	tc.Name = obj.Name

	return nil
}

// ResponseFormat constrains the model's output shape (spec.md §3.1):
// "text", "json_object", or a JSON-schema-constrained response.
type ResponseFormat struct {
	Mode       string          `json:"-"`
	JSONSchema json.RawMessage `json:"-"`
	Strict     *bool           `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (rf ResponseFormat) MarshalJSON() ([]byte, error) {
	if rf.Mode == "json_schema" {
		obj := map[string]any{"json_schema": json.RawMessage(rf.JSONSchema)}
		if rf.Strict != nil {
			obj["strict"] = *rf.Strict
		}

		return json.Marshal(obj)
	}

	return json.Marshal(rf.Mode)
}

// UnmarshalJSON implements json.Unmarshaler.
func (rf *ResponseFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		rf.Mode = s

		return nil
	}

	var obj struct {
		JSONSchema json.RawMessage `json:"json_schema"`
		Strict     *bool           `json:"strict"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("promptspec: invalid response_format: %w", err)
	}

	rf.Mode = "json_schema"
	rf.JSONSchema = obj.JSONSchema
	rf.Strict = obj.Strict

	return nil
}

// Sampling holds the optional numeric generation knobs (spec.md §3.1).
type Sampling struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TopK              *int64   `json:"top_k,omitempty"`
	FrequencyPenalty  *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64 `json:"presence_penalty,omitempty"`
}

// Limits holds the optional token-budget knobs (spec.md §3.1).
type Limits struct {
	MaxOutputTokens *int64 `json:"max_output_tokens,omitempty"`
	ReasoningTokens *int64 `json:"reasoning_tokens,omitempty"`
	MaxPromptTokens *int64 `json:"max_prompt_tokens,omitempty"`
}

// Media holds optional multimodal input/output descriptors (spec.md §3.1).
// The core never fetches or introspects media content; these are
// pass-through fields mapped verbatim by the provider's mapping table.
type Media struct {
	InputImages    []*value.Value `json:"input_images,omitempty"`
	InputAudio     *value.Value   `json:"input_audio,omitempty"`
	InputVideo     *value.Value   `json:"input_video,omitempty"`
	InputDocuments []*value.Value `json:"input_documents,omitempty"`
	OutputAudio    *value.Value   `json:"output_audio,omitempty"`
}

// Document is the uniform PromptSpec (spec.md §3.1). It is immutable once
// constructed; callers must treat it as a read-only input to translation.
type Document struct {
	ModelClass     ModelClass      `json:"model_class"`
	Messages       []Message       `json:"messages"`
	Tools          []Tool          `json:"tools,omitempty"`
	ToolChoice     *ToolChoice     `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Sampling       *Sampling       `json:"sampling,omitempty"`
	Limits         *Limits         `json:"limits,omitempty"`
	Media          *Media          `json:"media,omitempty"`
	RAG            *value.Value    `json:"rag,omitempty"`
	Conversation   *value.Value    `json:"conversation,omitempty"`
	Preferences    *value.Value    `json:"preferences,omitempty"`
	StrictMode     string          `json:"strict_mode"`
}

// Parse decodes raw JSON into a Document, defaulting StrictMode to "Warn"
// when absent (spec.md §3.1).
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("promptspec: decode: %w", err)
	}

	if doc.StrictMode == "" {
		doc.StrictMode = "Warn"
	}

	return &doc, nil
}

// Value converts the Document into the generic tagged-variant tree used by
// pathexpr for canonical-path reads during mapping (C7). The conversion is
// a marshal/unmarshal round trip; Document is never mutated through the
// returned tree (spec.md §3.5) because pathexpr.Read never writes.
func (d *Document) Value() (*value.Value, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("promptspec: encode for path access: %w", err)
	}

	v, err := value.FromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("promptspec: decode for path access: %w", err)
	}

	return v, nil
}

// ToolNames returns the configured tool names, for tool_choice validation.
func (d *Document) ToolNames() []string {
	names := make([]string, len(d.Tools))
	for i, t := range d.Tools {
		names[i] = t.Name
	}

	return names
}
