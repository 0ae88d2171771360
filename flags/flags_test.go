package flags_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specado/specado/flags"
	"github.com/specado/specado/lossiness"
	"github.com/specado/specado/promptspec"
	"github.com/specado/specado/providerspec"
	"github.com/specado/specado/strictness"
	"github.com/specado/specado/value"
)

func mustDoc(t *testing.T, js string) *promptspec.Document {
	t.Helper()

	doc, err := promptspec.Parse([]byte(js))
	require.NoError(t, err)

	return doc
}

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

func TestStaticFlagWritesValue(t *testing.T) {
	doc := mustDoc(t, `{"model_class":"Chat","messages":[{"role":"User","content":"hi"}]}`)
	model := mustModel(t, `{
		"id":"m1",
		"mappings":{"flags":{"reasoning":{"kind":"static","path":"reasoning_effort","value":"high"}}}
	}`)

	working := value.NewObject()
	tr := lossiness.New()

	result, err := flags.Run(tr, strictness.Warn, doc, working, model)
	require.NoError(t, err)
	assert.False(t, result.Fatal)

	obj, _ := working.Object()
	v, ok := obj.Get("reasoning_effort")
	require.True(t, ok)

	s, _ := v.String()
	assert.Equal(t, "high", s)
	assert.Equal(t, 0, tr.Len())
}

func TestStaticFlagDisplacingExistingValueRecordsConflict(t *testing.T) {
	doc := mustDoc(t, `{"model_class":"Chat","messages":[{"role":"User","content":"hi"}]}`)
	model := mustModel(t, `{
		"id":"m1",
		"mappings":{"flags":{"reasoning":{"kind":"static","path":"reasoning_effort","value":"high"}}}
	}`)

	working, err := value.FromJSON([]byte(`{"reasoning_effort":"low"}`))
	require.NoError(t, err)

	tr := lossiness.New()

	_, err = flags.Run(tr, strictness.Warn, doc, working, model)
	require.NoError(t, err)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeConflict, items[0].Code)
	assert.Equal(t, "low", items[0].Before)

	obj, _ := working.Object()
	v, _ := obj.Get("reasoning_effort")
	s, _ := v.String()
	assert.Equal(t, "high", s)
}

func TestEmulateJSONFlagMergesSystemPromptInstruction(t *testing.T) {
	doc := mustDoc(t, `{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}],
		"response_format":{"json_schema":{"type":"object"}}
	}`)
	model := mustModel(t, `{
		"id":"m1",
		"json_output":{"native_param":false,"strategy":"system_prompt"},
		"mappings":{"flags":{"jsonmode":{"kind":"emulate_json_via_system_prompt","path":"system"}}}
	}`)

	working, err := value.FromJSON([]byte(`{"system":"be nice"}`))
	require.NoError(t, err)

	tr := lossiness.New()

	_, err = flags.Run(tr, strictness.Warn, doc, working, model)
	require.NoError(t, err)

	obj, _ := working.Object()
	v, ok := obj.Get("system")
	require.True(t, ok)

	s, _ := v.String()
	assert.Contains(t, s, "be nice")
	assert.Contains(t, s, "JSON")

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeEmulate, items[0].Code)
}

func TestEmulateJSONFlagAppliesForJSONObjectMode(t *testing.T) {
	doc := mustDoc(t, `{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}],
		"response_format":"json_object"
	}`)
	model := mustModel(t, `{
		"id":"m1",
		"json_output":{"native_param":false,"strategy":"system_prompt"},
		"mappings":{"flags":{"jsonmode":{"kind":"emulate_json_via_system_prompt","path":"system"}}}
	}`)

	working, err := value.FromJSON([]byte(`{"system":"be nice"}`))
	require.NoError(t, err)

	tr := lossiness.New()

	_, err = flags.Run(tr, strictness.Warn, doc, working, model)
	require.NoError(t, err)

	obj, _ := working.Object()
	v, ok := obj.Get("system")
	require.True(t, ok)

	s, _ := v.String()
	assert.Contains(t, s, "be nice")
	assert.Contains(t, s, "valid JSON")

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeEmulate, items[0].Code)
}

func TestEmulateJSONFlagInactiveWhenNativeParamSupported(t *testing.T) {
	doc := mustDoc(t, `{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}],
		"response_format":{"json_schema":{"type":"object"}}
	}`)
	model := mustModel(t, `{
		"id":"m1",
		"json_output":{"native_param":true},
		"mappings":{"flags":{"jsonmode":{"kind":"emulate_json_via_system_prompt","path":"system"}}}
	}`)

	working := value.NewObject()
	tr := lossiness.New()

	_, err := flags.Run(tr, strictness.Warn, doc, working, model)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())
}

func TestSerializeParallelToolCallsDisablesSwitch(t *testing.T) {
	doc := mustDoc(t, `{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}],
		"tools":[
			{"name":"a","json_schema":{"type":"object"}},
			{"name":"b","json_schema":{"type":"object"}}
		]
	}`)
	model := mustModel(t, `{
		"id":"m1",
		"tooling":{"tools_supported":true,"parallel_tool_calls_default":false,"disable_switch":"parallel_tool_calls"},
		"mappings":{"flags":{"parallel":{"kind":"serialize_parallel_tool_calls"}}}
	}`)

	working := value.NewObject()
	tr := lossiness.New()

	_, err := flags.Run(tr, strictness.Warn, doc, working, model)
	require.NoError(t, err)

	obj, _ := working.Object()
	v, ok := obj.Get("parallel_tool_calls")
	require.True(t, ok)

	b, _ := v.Bool()
	assert.True(t, b)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, lossiness.CodeEmulate, items[0].Code)
}

func TestFlagCollisionLaterFlagWinsAndRecordsConflict(t *testing.T) {
	doc := mustDoc(t, `{"model_class":"Chat","messages":[{"role":"User","content":"hi"}]}`)
	model := mustModel(t, `{
		"id":"m1",
		"mappings":{"flags":{
			"first":{"kind":"static","path":"x","value":1},
			"second":{"kind":"static","path":"x","value":2}
		}}
	}`)

	working := value.NewObject()
	tr := lossiness.New()

	_, err := flags.Run(tr, strictness.Warn, doc, working, model)
	require.NoError(t, err)

	obj, _ := working.Object()
	v, ok := obj.Get("x")
	require.True(t, ok)

	n, _ := v.Number()
	assert.Equal(t, 2.0, n)

	var found bool

	for _, it := range tr.Items() {
		if it.Code == lossiness.CodeConflict && it.Path == "x" {
			found = true
			assert.Equal(t, 1.0, it.Before)
		}
	}

	assert.True(t, found)
}
