// Package providerspec defines the declarative capability document for one
// provider and its models (spec.md §3.2). Like promptspec.Document, a
// Document is a read-only input to translation.
package providerspec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Provider describes the operator-facing identity of a provider.
type Provider struct {
	Name    string            `json:"name"`
	BaseURL string            `json:"base_url"`
	Headers map[string]string `json:"headers,omitempty"`
	Auth    json.RawMessage   `json:"auth,omitempty"`
}

// Endpoint is consumed by the external HTTP collaborator, not by the
// translation core; it is carried through so response_normalization and
// related operator tooling can still read it from the same document.
type Endpoint struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Protocol string `json:"protocol"`
}

// Endpoints groups the endpoints a model record exposes.
type Endpoints struct {
	ChatCompletion          *Endpoint `json:"chat_completion,omitempty"`
	StreamingChatCompletion *Endpoint `json:"streaming_chat_completion,omitempty"`
}

// InputModes declares which PromptSpec shapes a model accepts.
type InputModes struct {
	Messages   bool `json:"messages"`
	SingleText bool `json:"single_text"`
	Images     bool `json:"images"`
	Audio      bool `json:"audio,omitempty"`
	Video      bool `json:"video,omitempty"`
}

// Supports reports whether mc is accepted given the declared input modes.
// Chat-family classes require Messages; a bare Completion class requires
// SingleText or Messages; Vision/Audio/Multimodal additionally require the
// matching modality flag (any one of them for Multimodal); Embedding is
// always accepted.
func (m InputModes) Supports(mc string) bool {
	switch mc {
	case "Chat", "ReasoningChat", "RAGChat":
		return m.Messages
	case "VisionChat":
		return m.Messages && m.Images
	case "AudioChat":
		return m.Messages && m.Audio
	case "MultimodalChat":
		return m.Messages && (m.Images || m.Audio || m.Video)
	case "Completion":
		return m.SingleText || m.Messages
	case "Embedding":
		return true
	default:
		return false
	}
}

// Tooling declares a model's function-calling capabilities.
type Tooling struct {
	ToolsSupported              bool            `json:"tools_supported"`
	ParallelToolCallsDefault    bool            `json:"parallel_tool_calls_default,omitempty"`
	CanDisableParallelToolCalls bool            `json:"can_disable_parallel_tool_calls,omitempty"`
	DisableSwitch               string          `json:"disable_switch,omitempty"`
	Extensions                  json.RawMessage `json:"extensions,omitempty"`
}

// JSONOutput declares how a model supports constrained/JSON output.
type JSONOutput struct {
	NativeParam bool   `json:"native_param"`
	Strategy    string `json:"strategy,omitempty"`
}

// ParamRange declares the supported bounds or enum for one parameter.
type ParamRange struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Enum []string `json:"enum,omitempty"`
}

// Parameters enumerates the supported sampling/limit knobs and their
// ranges (spec.md §3.2). Keys are canonical PromptSpec paths, e.g.
// "sampling.temperature".
type Parameters map[string]ParamRange

// Limits declares byte-size ceilings the pre-validator enforces (C5).
type Limits struct {
	MaxToolSchemaBytes   int64 `json:"max_tool_schema_bytes,omitempty"`
	MaxSystemPromptBytes int64 `json:"max_system_prompt_bytes,omitempty"`
}

// Constraints declares provider-shape rules the mapper/resolver enforce
// (spec.md §3.2).
type Constraints struct {
	SystemPromptLocation        string     `json:"system_prompt_location,omitempty"`
	ForbidUnknownTopLevelFields bool       `json:"forbid_unknown_top_level_fields,omitempty"`
	MutuallyExclusive           [][]string `json:"mutually_exclusive,omitempty"`
	ResolutionPreferences       []string   `json:"resolution_preferences,omitempty"`
	Limits                      Limits     `json:"limits,omitempty"`
}

// FlagAction is a single declarative flag action consumed by C9 (spec.md
// §4.9). Kind selects which interpreter branch applies; Path/Value carry
// the action's parameters.
type FlagAction struct {
	Kind  string          `json:"kind"`
	Path  string          `json:"path,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// TransformRuleSpec is the declarative, wire-JSON form of a C6 value
// transformation rule (spec.md §4.6). A ProviderSpec document declares
// these directly; only the Kinds expressible without a Go closure
// (TypeConversion, EnumMapping, UnitConversion, FieldRename, DefaultValue)
// are representable on the wire — Conditional and Custom remain
// programmatic-only extension points for a host embedding specado
// directly, since their predicate/transformation bodies cannot be named
// in JSON.
type TransformRuleSpec struct {
	ID             string          `json:"id"`
	Priority       int             `json:"priority,omitempty"`
	SourcePath     string          `json:"source_path"`
	TargetPath     string          `json:"target_path,omitempty"`
	Direction      string          `json:"direction,omitempty"`
	Kind           string          `json:"kind"`
	Optional       bool            `json:"optional,omitempty"`
	ConvertTo      string          `json:"convert_to,omitempty"`
	EnumMap        map[string]string `json:"enum_map,omitempty"`
	Scale          float64         `json:"scale,omitempty"`
	Offset         float64         `json:"offset,omitempty"`
	DefaultLiteral json.RawMessage `json:"default_literal,omitempty"`
}

// Mappings declares the canonical-to-provider path table and the named
// flag actions (spec.md §3.2).
type Mappings struct {
	Paths map[string]string     `json:"paths,omitempty"`
	Flags map[string]FlagAction `json:"flags,omitempty"`

	// FlagOrder preserves flags' declaration order (encoding/json decodes
	// maps with unspecified iteration order); populated by Parse from a
	// raw object token walk so C9's "declaration order" requirement
	// (spec.md §4.9, §5) is honorable.
	FlagOrder []string `json:"-"`

	// PathOrder preserves paths' declaration order for the same reason;
	// C7 walks mappings.paths in this order (spec.md §5: "mapper: provider
	// mappings.paths declaration order").
	PathOrder []string `json:"-"`
}

// Model is one model record within a ProviderSpec (spec.md §3.2).
type Model struct {
	ID                     string               `json:"id"`
	Aliases                []string             `json:"aliases,omitempty"`
	Family                 string               `json:"family,omitempty"`
	Endpoints              Endpoints            `json:"endpoints,omitempty"`
	InputModes             InputModes           `json:"input_modes,omitempty"`
	Tooling                Tooling              `json:"tooling,omitempty"`
	JSONOutput             JSONOutput           `json:"json_output,omitempty"`
	Parameters             Parameters           `json:"parameters,omitempty"`
	Constraints            Constraints          `json:"constraints,omitempty"`
	Mappings               Mappings             `json:"mappings,omitempty"`
	TransformRules         []TransformRuleSpec  `json:"transform_rules,omitempty"`
	ResponseNormalization   json.RawMessage      `json:"response_normalization,omitempty"`
}

// Matches reports whether modelID case-sensitively equals m.ID or one of
// m.Aliases (spec.md §4.11: "Resolve the model by id ... or any
// aliases[i] (case-sensitive)").
func (m Model) Matches(modelID string) bool {
	if m.ID == modelID {
		return true
	}

	for _, a := range m.Aliases {
		if a == modelID {
			return true
		}
	}

	return false
}

// Document is the declarative ProviderSpec (spec.md §3.2).
type Document struct {
	SpecVersion string   `json:"spec_version"`
	Provider    Provider `json:"provider"`
	Models      []Model  `json:"models"`
}

// Parse decodes raw JSON into a Document, additionally populating each
// model's Mappings.FlagOrder/PathOrder from the document's own key order
// so C7/C9 can walk mappings.paths/flags in declaration order (spec.md
// §4.7, §4.9, §5).
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("providerspec: decode: %w", err)
	}

	flagOrders, pathOrders, err := mappingOrdersByModel(raw)
	if err != nil {
		return nil, fmt.Errorf("providerspec: decode mapping order: %w", err)
	}

	for i := range doc.Models {
		if i < len(flagOrders) {
			doc.Models[i].Mappings.FlagOrder = flagOrders[i]
		}

		if i < len(pathOrders) {
			doc.Models[i].Mappings.PathOrder = pathOrders[i]
		}
	}

	return &doc, nil
}

// FindModel resolves modelID against every model's id/aliases (spec.md
// §4.11), returning the matching Model and the full candidate list (ids +
// aliases) for "did you mean" diagnostics (SPEC_FULL.md §C.1) when no
// match is found.
func (d *Document) FindModel(modelID string) (*Model, []string, bool) {
	var candidates []string

	for i := range d.Models {
		candidates = append(candidates, d.Models[i].ID)
		candidates = append(candidates, d.Models[i].Aliases...)

		if d.Models[i].Matches(modelID) {
			return &d.Models[i], candidates, true
		}
	}

	return nil, candidates, false
}

// mappingOrdersByModel walks the raw JSON to recover each model's
// mappings.flags and mappings.paths key order, since Go's map decoding
// does not preserve it.
func mappingOrdersByModel(raw []byte) (flagOrders, pathOrders [][]string, err error) {
	var top struct {
		Models []json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, nil, err
	}

	flagOrders = make([][]string, len(top.Models))
	pathOrders = make([][]string, len(top.Models))

	for i, modelRaw := range top.Models {
		var m struct {
			Mappings struct {
				Flags json.RawMessage `json:"flags"`
				Paths json.RawMessage `json:"paths"`
			} `json:"mappings"`
		}
		if err := json.Unmarshal(modelRaw, &m); err != nil {
			return nil, nil, err
		}

		if len(m.Mappings.Flags) > 0 {
			order, err := objectKeyOrder(m.Mappings.Flags)
			if err != nil {
				return nil, nil, err
			}

			flagOrders[i] = order
		}

		if len(m.Mappings.Paths) > 0 {
			order, err := objectKeyOrder(m.Mappings.Paths)
			if err != nil {
				return nil, nil, err
			}

			pathOrders[i] = order
		}
	}

	return flagOrders, pathOrders, nil
}

// objectKeyOrder returns the top-level key order of a JSON object literal.
func objectKeyOrder(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("providerspec: expected object, got %v", tok)
	}

	var keys []string

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("providerspec: expected string key, got %v", keyTok)
		}

		keys = append(keys, key)

		// Skip the value token tree.
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}

	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	if d == '[' || d == '{' {
		for dec.More() {
			if err := skipValue(dec); err != nil {
				return err
			}
		}

		_, err := dec.Token() // consume closing delim

		return err
	}

	return nil
}
