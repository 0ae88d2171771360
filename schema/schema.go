// Package schema implements C2: the three-mode structural/cross-field
// validator for PromptSpec and ProviderSpec documents (spec.md §4.2).
// Validation operates on the generic tagged-variant tree (value.Value)
// rather than the typed promptspec/providerspec structs, since a
// validation failure must be reported with a document path and a stable
// rule_id even when the document doesn't decode cleanly into the typed
// shape — the validator is the thing that explains *why* it doesn't.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/specado/specado/pathexpr"
	"github.com/specado/specado/value"
)

// DocumentType selects which schema Validate checks against.
type DocumentType string

const (
	PromptSpecDoc   DocumentType = "PromptSpec"
	ProviderSpecDoc DocumentType = "ProviderSpec"
)

// Mode is one of the three validation strictness levels (spec.md §4.2).
type Mode string

const (
	Basic   Mode = "basic"
	Partial Mode = "partial"
	Strict  Mode = "strict"
)

// ValidationError is one structural or cross-field violation (spec.md §4.2).
type ValidationError struct {
	Path     string
	Message  string
	RuleID   string
	Expected string
	Actual   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (rule=%s, path=%s)", e.RuleID, e.Message, e.RuleID, e.Path)
}

// collector gathers errors in the validator's fixed check order: fields
// are checked in a fixed sequence per document type, Basic checks before
// the Partial and then the Strict ones, and mappings.paths keys in sorted
// order. The order is deterministic; it does not follow the key order of
// the input document.
type collector struct {
	errs []ValidationError
}

func (c *collector) add(path, message, ruleID string, expected, actual string) {
	c.errs = append(c.errs, ValidationError{
		Path: path, Message: message, RuleID: ruleID, Expected: expected, Actual: actual,
	})
}

// ValidateJSON parses raw and validates it as which under mode. A JSON
// decode failure itself is reported as a single ValidationError rather
// than a Go error, so callers always get a uniform errors[] (spec.md §6.3).
func ValidateJSON(raw []byte, which DocumentType, mode Mode) []ValidationError {
	v, err := value.FromJSON(raw)
	if err != nil {
		return []ValidationError{{
			Path: "$", Message: fmt.Sprintf("malformed JSON: %v", err), RuleID: "document.malformed_json",
		}}
	}

	return Validate(v, which, mode)
}

// Validate checks doc against which's declarative schema at the given
// mode, returning every violation in the collector's fixed check order. An empty
// return means the document is valid at that mode.
func Validate(doc *value.Value, which DocumentType, mode Mode) []ValidationError {
	c := &collector{}

	switch which {
	case PromptSpecDoc:
		validatePromptSpec(c, doc, mode)
	case ProviderSpecDoc:
		validateProviderSpec(c, doc, mode)
	}

	return c.errs
}

// ---- PromptSpec ----

var validModelClasses = map[string]bool{
	"Chat": true, "ReasoningChat": true, "VisionChat": true, "AudioChat": true,
	"MultimodalChat": true, "RAGChat": true, "Completion": true, "Embedding": true,
}

var chatFamilyClasses = map[string]bool{
	"Chat": true, "ReasoningChat": true, "VisionChat": true, "AudioChat": true,
	"MultimodalChat": true, "RAGChat": true,
}

var validRoles = map[string]bool{"System": true, "User": true, "Assistant": true, "Tool": true}

var validStrictModes = map[string]bool{"Strict": true, "Warn": true, "Coerce": true}

func validatePromptSpec(c *collector, doc *value.Value, mode Mode) {
	obj, ok := doc.Object()
	if !ok {
		c.add("$", "PromptSpec must be a JSON object", "document.type", "object", doc.Kind().String())

		return
	}

	mcVal, hasMC := obj.Get("model_class")
	modelClass := ""

	if !hasMC {
		c.add("model_class", "model_class is required", "model_class.required", "present", "absent")
	} else if s, ok := mcVal.String(); !ok || !validModelClasses[s] {
		c.add("model_class", "model_class must be a known enum value", "model_class.enum", "enum", stringOr(mcVal))
	} else {
		modelClass = s
	}

	messagesVal, hasMessages := obj.Get("messages")

	var messages []*value.Value

	if !hasMessages {
		c.add("messages", "messages is required", "messages.required", "present", "absent")
	} else if arr, ok := messagesVal.Array(); !ok {
		c.add("messages", "messages must be an array", "messages.type", "array", messagesVal.Kind().String())
	} else {
		messages = arr
	}

	toolNames := map[string]bool{}

	for i, m := range messages {
		validateMessage(c, fmt.Sprintf("messages[%d]", i), m)
	}

	if toolsVal, ok := obj.Get("tools"); ok {
		if arr, ok := toolsVal.Array(); ok {
			for i, tv := range arr {
				name := validateTool(c, fmt.Sprintf("tools[%d]", i), tv, mode)
				if name != "" {
					toolNames[name] = true
				}
			}
		} else {
			c.add("tools", "tools must be an array", "tools.type", "array", toolsVal.Kind().String())
		}
	}

	if sm, ok := obj.Get("strict_mode"); ok {
		if s, ok := sm.String(); !ok || !validStrictModes[s] {
			c.add("strict_mode", "strict_mode must be Strict, Warn, or Coerce", "strict_mode.enum", "enum", stringOr(sm))
		}
	}

	if mode == Basic {
		return
	}

	// Partial: cross-field rules.
	if hasMC && hasMessages && chatFamilyClasses[modelClass] && len(messages) == 0 {
		c.add("messages", "messages must be non-empty for a Chat-family model_class", "messages.nonempty", "non-empty", "empty")
	}

	if samplingVal, ok := obj.Get("sampling"); ok {
		validateSampling(c, samplingVal)
	}

	if limitsVal, ok := obj.Get("limits"); ok {
		validateLimits(c, limitsVal)
	}

	if tcVal, ok := obj.Get("tool_choice"); ok {
		validateToolChoice(c, tcVal, toolNames)
	}

	if mode == Partial {
		return
	}

	// Strict: JSON-Schema structural validity of embedded schemas.
	if toolsVal, ok := obj.Get("tools"); ok {
		if arr, ok := toolsVal.Array(); ok {
			for i, tv := range arr {
				tobj, ok := tv.Object()
				if !ok {
					continue
				}

				if js, ok := tobj.Get("json_schema"); ok {
					validateJSONSchemaShape(c, fmt.Sprintf("tools[%d].json_schema", i), js)
				}
			}
		}
	}

	if rfVal, ok := obj.Get("response_format"); ok {
		if rfObj, ok := rfVal.Object(); ok {
			if js, ok := rfObj.Get("json_schema"); ok {
				validateJSONSchemaShape(c, "response_format.json_schema", js)
			}
		}
	}
}

func validateMessage(c *collector, path string, m *value.Value) {
	obj, ok := m.Object()
	if !ok {
		c.add(path, "message must be an object", "message.type", "object", m.Kind().String())

		return
	}

	roleVal, hasRole := obj.Get("role")
	if !hasRole {
		c.add(path+".role", "role is required", "message.role.required", "present", "absent")
	} else if s, ok := roleVal.String(); !ok || !validRoles[s] {
		c.add(path+".role", "role must be System, User, Assistant, or Tool", "message.role.enum", "enum", stringOr(roleVal))
	}

	if _, hasContent := obj.Get("content"); !hasContent {
		c.add(path+".content", "content is required", "message.content.required", "present", "absent")
	}
}

func validateTool(c *collector, path string, t *value.Value, mode Mode) string {
	obj, ok := t.Object()
	if !ok {
		c.add(path, "tool must be an object", "tool.type", "object", t.Kind().String())

		return ""
	}

	name := ""

	nameVal, hasName := obj.Get("name")
	if !hasName {
		c.add(path+".name", "name is required", "tool.name.required", "present", "absent")
	} else if s, ok := nameVal.String(); ok {
		name = s
	}

	if _, hasSchema := obj.Get("json_schema"); !hasSchema {
		c.add(path+".json_schema", "json_schema is required", "tool.json_schema.required", "present", "absent")
	}

	return name
}

func validateSampling(c *collector, v *value.Value) {
	obj, ok := v.Object()
	if !ok {
		c.add("sampling", "sampling must be an object", "sampling.type", "object", v.Kind().String())

		return
	}

	checkRange(c, obj, "temperature", "sampling.temperature", 0, 2)
	checkRange(c, obj, "top_p", "sampling.top_p", 0, 1)
	checkMin(c, obj, "top_k", "sampling.top_k", 1)
	checkRange(c, obj, "frequency_penalty", "sampling.frequency_penalty", -2, 2)
	checkRange(c, obj, "presence_penalty", "sampling.presence_penalty", -2, 2)
}

func validateLimits(c *collector, v *value.Value) {
	obj, ok := v.Object()
	if !ok {
		c.add("limits", "limits must be an object", "limits.type", "object", v.Kind().String())

		return
	}

	checkMin(c, obj, "max_output_tokens", "limits.max_output_tokens", 1)
	checkMin(c, obj, "reasoning_tokens", "limits.reasoning_tokens", 1)
	checkMin(c, obj, "max_prompt_tokens", "limits.max_prompt_tokens", 1)
}

func checkRange(c *collector, obj *value.Object, key, path string, lo, hi float64) {
	fv, ok := obj.Get(key)
	if !ok {
		return
	}

	n, isNum := fv.Number()
	if !isNum {
		c.add(path, key+" must be a number", path+".type", "number", fv.Kind().String())

		return
	}

	if n < lo || n > hi {
		c.add(path, fmt.Sprintf("%s must be within [%g, %g]", key, lo, hi), path+".range",
			fmt.Sprintf("[%g,%g]", lo, hi), fmt.Sprintf("%g", n))
	}
}

func checkMin(c *collector, obj *value.Object, key, path string, min float64) {
	fv, ok := obj.Get(key)
	if !ok {
		return
	}

	n, isNum := fv.Number()
	if !isNum {
		c.add(path, key+" must be a number", path+".type", "number", fv.Kind().String())

		return
	}

	if n < min {
		c.add(path, fmt.Sprintf("%s must be >= %g", key, min), path+".range", fmt.Sprintf(">=%g", min), fmt.Sprintf("%g", n))
	}
}

func validateToolChoice(c *collector, v *value.Value, toolNames map[string]bool) {
	if s, ok := v.String(); ok {
		if s != "auto" && s != "required" {
			c.add("tool_choice", "tool_choice string form must be auto or required", "tool_choice.enum", "auto|required", s)
		}

		return
	}

	obj, ok := v.Object()
	if !ok {
		c.add("tool_choice", "tool_choice must be a string or {\"name\": ...}", "tool_choice.type", "string|object", v.Kind().String())

		return
	}

	nameVal, hasName := obj.Get("name")
	if !hasName {
		c.add("tool_choice.name", "tool_choice object form requires name", "tool_choice.name.required", "present", "absent")

		return
	}

	name, _ := nameVal.String()
	if !toolNames[name] {
		c.add("tool_choice.name", "tool_choice names a tool not present in tools[]", "tool_choice.unknown_tool", "declared tool name", name)
	}
}

func validateJSONSchemaShape(c *collector, path string, v *value.Value) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.add(path, "json_schema could not be re-encoded for validation", "json_schema.internal", "", "")

		return
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		c.add(path, "json_schema is not a well-formed JSON Schema document: "+err.Error(), "json_schema.malformed", "valid JSON Schema", "")
	}
}

// ---- ProviderSpec ----

func validateProviderSpec(c *collector, doc *value.Value, mode Mode) {
	obj, ok := doc.Object()
	if !ok {
		c.add("$", "ProviderSpec must be a JSON object", "document.type", "object", doc.Kind().String())

		return
	}

	if _, ok := obj.Get("spec_version"); !ok {
		c.add("spec_version", "spec_version is required", "spec_version.required", "present", "absent")
	}

	providerVal, hasProvider := obj.Get("provider")
	if !hasProvider {
		c.add("provider", "provider is required", "provider.required", "present", "absent")
	} else {
		validateProvider(c, providerVal, mode)
	}

	modelsVal, hasModels := obj.Get("models")
	if !hasModels {
		c.add("models", "models is required", "models.required", "present", "absent")

		return
	}

	arr, ok := modelsVal.Array()
	if !ok {
		c.add("models", "models must be an array", "models.type", "array", modelsVal.Kind().String())

		return
	}

	if len(arr) == 0 {
		c.add("models", "models must be non-empty", "models.nonempty", "non-empty", "empty")
	}

	httpsBase := false

	if nameVal, ok := providerVal.Object(); ok {
		if baseURL, ok := nameVal.Get("base_url"); ok {
			if s, ok := baseURL.String(); ok {
				httpsBase = len(s) >= 8 && s[:8] == "https://"
			}
		}
	}

	for i, m := range arr {
		validateModel(c, fmt.Sprintf("models[%d]", i), m, mode, httpsBase)
	}
}

func validateProvider(c *collector, v *value.Value, mode Mode) {
	obj, ok := v.Object()
	if !ok {
		c.add("provider", "provider must be an object", "provider.type", "object", v.Kind().String())

		return
	}

	if _, ok := obj.Get("name"); !ok {
		c.add("provider.name", "provider.name is required", "provider.name.required", "present", "absent")
	}

	if _, ok := obj.Get("base_url"); !ok {
		c.add("provider.base_url", "provider.base_url is required", "provider.base_url.required", "present", "absent")
	}

	if mode != Strict {
		return
	}

	headersVal, ok := obj.Get("headers")
	if !ok {
		return
	}

	headersObj, ok := headersVal.Object()
	if !ok {
		return
	}

	for _, k := range headersObj.Keys() {
		hv, _ := headersObj.Get(k)
		s, ok := hv.String()

		if ok && !isAllowedHeaderPlaceholder(s) {
			c.add("provider.headers."+k, "header value references an unsupported placeholder shape; only ${ENV:NAME} is allowed", "headers.env_format", "${ENV:NAME}", s)
		}
	}
}

func validateModel(c *collector, path string, v *value.Value, mode Mode, httpsBase bool) {
	obj, ok := v.Object()
	if !ok {
		c.add(path, "model must be an object", "model.type", "object", v.Kind().String())

		return
	}

	if _, ok := obj.Get("id"); !ok {
		c.add(path+".id", "id is required", "model.id.required", "present", "absent")
	}

	toolsSupported := true

	if toolingVal, ok := obj.Get("tooling"); ok {
		if toolingObj, ok := toolingVal.Object(); ok {
			if ts, ok := toolingObj.Get("tools_supported"); ok {
				if b, ok := ts.Bool(); ok {
					toolsSupported = b
				}
			}
		}
	}

	mappingsVal, hasMappings := obj.Get("mappings")

	var pathKeys map[string]bool

	if hasMappings {
		pathKeys = validateMappings(c, path+".mappings", mappingsVal, mode)
	}

	if mode != Strict {
		return
	}

	if constraintsVal, ok := obj.Get("constraints"); ok {
		validateConstraintsStrict(c, path+".constraints", constraintsVal, pathKeys)
	}

	if !toolsSupported {
		if toolingVal, ok := obj.Get("tooling"); ok {
			if toolingObj, ok := toolingVal.Object(); ok {
				if ext, ok := toolingObj.Get("extensions"); ok {
					raw, _ := json.Marshal(ext)
					if containsToolChoiceModes(string(raw)) {
						c.add(path+".tooling.extensions", "tool_choice_modes must not appear when tools_supported is false", "tooling.capability_consistency", "absent", "present")
					}
				}
			}
		}
	}

	if httpsBase {
		if epVal, ok := obj.Get("endpoints"); ok {
			validateEndpointsProtocol(c, path+".endpoints", epVal)
		}
	}
}

func containsToolChoiceModes(s string) bool {
	return len(s) > 0 && indexOf(s, "tool_choice_modes") >= 0
}

func indexOf(haystack, needle string) int {
	n := len(needle)
	if n == 0 {
		return 0
	}

	for i := 0; i+n <= len(haystack); i++ {
		if haystack[i:i+n] == needle {
			return i
		}
	}

	return -1
}

func validateEndpointsProtocol(c *collector, path string, v *value.Value) {
	obj, ok := v.Object()
	if !ok {
		return
	}

	for _, name := range []string{"chat_completion", "streaming_chat_completion"} {
		epVal, ok := obj.Get(name)
		if !ok {
			continue
		}

		epObj, ok := epVal.Object()
		if !ok {
			continue
		}

		protoVal, ok := epObj.Get("protocol")
		if !ok {
			continue
		}

		proto, _ := protoVal.String()
		if proto != "https" && proto != "" {
			c.add(fmt.Sprintf("%s.%s.protocol", path, name), "endpoint protocol must be https when base_url is https", "endpoint.protocol_consistency", "https", proto)
		}
	}
}

func validateMappings(c *collector, path string, v *value.Value, mode Mode) map[string]bool {
	obj, ok := v.Object()
	if !ok {
		c.add(path, "mappings must be an object", "mappings.type", "object", v.Kind().String())

		return nil
	}

	pathKeys := map[string]bool{}

	pathsVal, ok := obj.Get("paths")
	if ok {
		pathsObj, ok := pathsVal.Object()
		if ok {
			keys := pathsObj.Keys()
			sort.Strings(keys) // deterministic traversal for any key ever visited twice

			for _, k := range keys {
				pathKeys[k] = true

				if mode != Strict {
					continue
				}

				if _, err := pathexpr.Parse(k); err != nil {
					c.add(path+".paths["+k+"]", "mapping source path does not parse: "+err.Error(), "mapping.path.syntax", "valid path", k)
				}

				tv, _ := pathsObj.Get(k)
				if s, ok := tv.String(); ok {
					if _, err := pathexpr.Parse(s); err != nil {
						c.add(path+".paths["+k+"]", "mapping target path does not parse: "+err.Error(), "mapping.path.syntax", "valid path", s)
					}
				} else {
					c.add(path+".paths["+k+"]", "mapping target must be a string path", "mapping.path.type", "string", tv.Kind().String())
				}
			}
		}
	}

	return pathKeys
}

func validateConstraintsStrict(c *collector, path string, v *value.Value, pathKeys map[string]bool) {
	obj, ok := v.Object()
	if !ok {
		return
	}

	checkPathRefs := func(fieldPath string, paths []*value.Value) {
		for _, pv := range paths {
			s, ok := pv.String()
			if !ok {
				continue
			}

			if s == "messages" || pathKeys[s] {
				continue
			}

			c.add(fieldPath, "path is not a key of mappings.paths and is not \"messages\"", "constraints.ref", "mappings.paths key or messages", s)
		}
	}

	if meVal, ok := obj.Get("mutually_exclusive"); ok {
		if arr, ok := meVal.Array(); ok {
			for i, group := range arr {
				if gArr, ok := group.Array(); ok {
					checkPathRefs(fmt.Sprintf("%s.mutually_exclusive[%d]", path, i), gArr)
				}
			}
		}
	}

	if rpVal, ok := obj.Get("resolution_preferences"); ok {
		if arr, ok := rpVal.Array(); ok {
			checkPathRefs(path+".resolution_preferences", arr)
		}
	}
}

// isAllowedHeaderPlaceholder checks every "${...}" token in s, not just
// whether "${ENV:" appears anywhere — a value like "${ENV:FOO}${BAR}"
// must be rejected even though it also contains an allowed token.
func isAllowedHeaderPlaceholder(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || i+1 >= len(s) || s[i+1] != '{' {
			continue
		}

		end := indexOf(s[i:], "}")
		if end < 0 {
			return false
		}

		token := s[i : i+end+1]
		if !isEnvPlaceholder(token) {
			return false
		}

		i += end
	}

	return true
}

// isEnvPlaceholder reports whether token is exactly "${ENV:NAME}" with a
// non-empty NAME.
func isEnvPlaceholder(token string) bool {
	const prefix = "${ENV:"

	if len(token) <= len(prefix)+1 {
		return false
	}

	if token[:len(prefix)] != prefix || token[len(token)-1] != '}' {
		return false
	}

	name := token[len(prefix) : len(token)-1]

	return name != ""
}

func stringOr(v *value.Value) string {
	if s, ok := v.String(); ok {
		return s
	}

	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(b)
}
