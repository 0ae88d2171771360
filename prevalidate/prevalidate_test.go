package prevalidate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/prevalidate"
	"github.com/specado/specado/promptspec"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/strictness"
)

func mustModel(t *testing.T, js string) *providerspec.Model {
	t.Helper()

	doc, err := providerspec.Parse([]byte(`{
		"spec_version":"1",
		"provider":{"name":"p","base_url":"https://api.example.com"},
		"models":[` + js + `]
	}`))
	require.NoError(t, err)
	require.Len(t, doc.Models, 1)

	return &doc.Models[0]
}

func mustDoc(t *testing.T, js string) *promptspec.Document {
	t.Helper()

	doc, err := promptspec.Parse([]byte(js))
	require.NoError(t, err)

	return doc
}

func TestNumericRangeViolationRecordsClamp(t *testing.T) {
	model := mustModel(t, `{
		"id":"m1",
		"input_modes":{"messages":true},
		"parameters":{"sampling.temperature":{"min":0,"max":2}}
	}`)
	doc := mustDoc(t, `{
		"model_class":"Chat","messages":[{"role":"User","content":"hi"}],
		"sampling":{"temperature":5}
	}`)

	tr := lossiness.New()
	_, err := prevalidate.Run(tr, strictness.Warn, doc, model)
	require.NoError(t, err)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeClamp, items[0].Code)
	assert.Equal(t, "sampling.temperature", items[0].Path)
}

func TestNumericRangeInRangeRecordsNothing(t *testing.T) {
	model := mustModel(t, `{
		"id":"m1",
		"input_modes":{"messages":true},
		"parameters":{"sampling.temperature":{"min":0,"max":2}}
	}`)
	doc := mustDoc(t, `{
		"model_class":"Chat","messages":[{"role":"User","content":"hi"}],
		"sampling":{"temperature":0.5}
	}`)

	tr := lossiness.New()
	result, err := prevalidate.Run(tr, strictness.Warn, doc, model)
	require.NoError(t, err)
	assert.False(t, result.Fatal)
	assert.Equal(t, 0, tr.Len())
}

func TestToolsUnsupportedRecordsErrorSeverity(t *testing.T) {
	model := mustModel(t, `{
		"id":"m1",
		"input_modes":{"messages":true},
		"tooling":{"tools_supported":false}
	}`)
	doc := mustDoc(t, `{
		"model_class":"Chat","messages":[{"role":"User","content":"hi"}],
		"tools":[{"name":"x","json_schema":{"type":"object"}}]
	}`)

	tr := lossiness.New()
	result, err := prevalidate.Run(tr, strictness.Strict, doc, model)
	require.NoError(t, err)
	assert.True(t, result.Fatal)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeUnsupported, items[0].Code)
	assert.Equal(t, lossiness.SeverityError, items[0].Severity)
}

func TestResponseFormatPlansEmulation(t *testing.T) {
	model := mustModel(t, `{
		"id":"m1",
		"input_modes":{"messages":true},
		"json_output":{"native_param":false,"strategy":"system_prompt"}
	}`)
	doc := mustDoc(t, `{
		"model_class":"Chat","messages":[{"role":"User","content":"hi"}],
		"response_format":{"json_schema":{"type":"object"}}
	}`)

	tr := lossiness.New()
	_, err := prevalidate.Run(tr, strictness.Warn, doc, model)
	require.NoError(t, err)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeEmulate, items[0].Code)
	assert.Equal(t, "system_prompt", items[0].Metadata["json_strategy"])
}

func TestResponseFormatJSONObjectPlansEmulation(t *testing.T) {
	model := mustModel(t, `{
		"id":"m1",
		"input_modes":{"messages":true},
		"json_output":{"native_param":false,"strategy":"system_prompt"}
	}`)
	doc := mustDoc(t, `{
		"model_class":"Chat","messages":[{"role":"User","content":"hi"}],
		"response_format":"json_object"
	}`)

	tr := lossiness.New()
	_, err := prevalidate.Run(tr, strictness.Warn, doc, model)
	require.NoError(t, err)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeEmulate, items[0].Code)
	assert.Equal(t, "system_prompt", items[0].Metadata["json_strategy"])
}

func TestSystemPromptSizeRecordsPerformanceImpactNotFatal(t *testing.T) {
	model := mustModel(t, `{
		"id":"m1",
		"input_modes":{"messages":true},
		"constraints":{"limits":{"max_system_prompt_bytes":4}}
	}`)
	doc := mustDoc(t, `{
		"model_class":"Chat",
		"messages":[{"role":"System","content":"this is a long system prompt"},{"role":"User","content":"hi"}]
	}`)

	tr := lossiness.New()
	result, err := prevalidate.Run(tr, strictness.Strict, doc, model)
	require.NoError(t, err)
	assert.False(t, result.Fatal)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodePerformanceImpact, items[0].Code)
}

func TestModelClassUnsupportedByInputModes(t *testing.T) {
	model := mustModel(t, `{
		"id":"m1",
		"input_modes":{"messages":true}
	}`)
	doc := mustDoc(t, `{
		"model_class":"VisionChat",
		"messages":[{"role":"User","content":"hi"}]
	}`)

	tr := lossiness.New()
	result, err := prevalidate.Run(tr, strictness.Warn, doc, model)
	require.NoError(t, err)
	assert.False(t, result.Fatal)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeUnsupported, items[0].Code)
}
