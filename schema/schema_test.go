package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specado/specado/schema"
)

func ruleIDs(errs []schema.ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.RuleID
	}

	return out
}

func TestValidatePromptSpecBasicRequiredFields(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{}`), schema.PromptSpecDoc, schema.Basic)
	assert.Contains(t, ruleIDs(errs), "model_class.required")
	assert.Contains(t, ruleIDs(errs), "messages.required")
}

func TestValidatePromptSpecBasicAcceptsMinimalDoc(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}]
	}`), schema.PromptSpecDoc, schema.Basic)
	assert.Empty(t, errs)
}

func TestValidatePromptSpecPartialCatchesEmptyChatMessages(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"model_class":"Chat",
		"messages":[]
	}`), schema.PromptSpecDoc, schema.Partial)
	assert.Contains(t, ruleIDs(errs), "messages.nonempty")
}

func TestValidatePromptSpecPartialCatchesSamplingRange(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}],
		"sampling":{"temperature": 5}
	}`), schema.PromptSpecDoc, schema.Partial)
	assert.Contains(t, ruleIDs(errs), "sampling.temperature.range")
}

func TestValidatePromptSpecPartialCatchesUnknownToolChoice(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}],
		"tools":[{"name":"x","json_schema":{"type":"object"}}],
		"tool_choice":{"name":"y"}
	}`), schema.PromptSpecDoc, schema.Partial)
	assert.Contains(t, ruleIDs(errs), "tool_choice.unknown_tool")
}

func TestValidatePromptSpecStrictCatchesMalformedJSONSchema(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}],
		"tools":[{"name":"x","json_schema":{"type": 123}}]
	}`), schema.PromptSpecDoc, schema.Strict)
	assert.Contains(t, ruleIDs(errs), "json_schema.malformed")
}

func TestValidateMalformedJSONReportsOneError(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{not json`), schema.PromptSpecDoc, schema.Basic)
	require.Len(t, errs, 1)
	assert.Equal(t, "document.malformed_json", errs[0].RuleID)
}

func TestValidateProviderSpecBasicRequiredFields(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{}`), schema.ProviderSpecDoc, schema.Basic)
	assert.Contains(t, ruleIDs(errs), "spec_version.required")
	assert.Contains(t, ruleIDs(errs), "provider.required")
	assert.Contains(t, ruleIDs(errs), "models.required")
}

func TestValidateProviderSpecStrictCatchesBadMappingPath(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"spec_version":"1",
		"provider":{"name":"x","base_url":"https://api.example.com"},
		"models":[{
			"id":"m1",
			"mappings":{"paths":{"sampling.temperature[":"temperature"}}
		}]
	}`), schema.ProviderSpecDoc, schema.Strict)
	assert.Contains(t, ruleIDs(errs), "mapping.path.syntax")
}

func TestValidateProviderSpecStrictCatchesBadHeaderPlaceholder(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"spec_version":"1",
		"provider":{
			"name":"x","base_url":"https://api.example.com",
			"headers":{"Authorization":"Bearer ${SECRET}"}
		},
		"models":[{"id":"m1"}]
	}`), schema.ProviderSpecDoc, schema.Strict)
	assert.Contains(t, ruleIDs(errs), "headers.env_format")
}

func TestValidateProviderSpecStrictAcceptsEnvHeaderPlaceholder(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"spec_version":"1",
		"provider":{
			"name":"x","base_url":"https://api.example.com",
			"headers":{"Authorization":"Bearer ${ENV:API_KEY}"}
		},
		"models":[{"id":"m1"}]
	}`), schema.ProviderSpecDoc, schema.Strict)
	assert.NotContains(t, ruleIDs(errs), "headers.env_format")
}

func TestValidateProviderSpecStrictCatchesMixedHeaderPlaceholder(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"spec_version":"1",
		"provider":{
			"name":"x","base_url":"https://api.example.com",
			"headers":{"Authorization":"Bearer ${ENV:API_KEY}${SECRET}"}
		},
		"models":[{"id":"m1"}]
	}`), schema.ProviderSpecDoc, schema.Strict)
	assert.Contains(t, ruleIDs(errs), "headers.env_format")
}

func TestValidateProviderSpecStrictCatchesDanglingConstraintRef(t *testing.T) {
	errs := schema.ValidateJSON([]byte(`{
		"spec_version":"1",
		"provider":{"name":"x","base_url":"https://api.example.com"},
		"models":[{
			"id":"m1",
			"mappings":{"paths":{"sampling.temperature":"temperature"}},
			"constraints":{"resolution_preferences":["sampling.top_p"]}
		}]
	}`), schema.ProviderSpecDoc, schema.Strict)
	assert.Contains(t, ruleIDs(errs), "constraints.ref")
}
