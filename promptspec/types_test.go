package promptspec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specado/specado/promptspec"
)

func TestParseDefaultsStrictModeToWarn(t *testing.T) {
	doc, err := promptspec.Parse([]byte(`{
		"model_class":"Chat",
		"messages":[{"role":"User","content":"hi"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Warn", doc.StrictMode)
}

func TestContentAcceptsStringOrArray(t *testing.T) {
	doc, err := promptspec.Parse([]byte(`{
		"model_class":"Chat","strict_mode":"Warn",
		"messages":[
			{"role":"User","content":"hello"},
			{"role":"User","content":[{"type":"text","text":"hi"}]}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, doc.Messages, 2)
	assert.False(t, doc.Messages[0].Content.IsArray())
	assert.Equal(t, "hello", doc.Messages[0].Content.Text)
	assert.True(t, doc.Messages[1].Content.IsArray())
}

func TestToolChoiceNamedForm(t *testing.T) {
	doc, err := promptspec.Parse([]byte(`{
		"model_class":"Chat","strict_mode":"Warn",
		"messages":[{"role":"User","content":"hi"}],
		"tools":[{"name":"x","json_schema":{"type":"object"}}],
		"tool_choice":{"name":"x"}
	}`))
	require.NoError(t, err)
	require.NotNil(t, doc.ToolChoice)
	assert.Equal(t, "name", doc.ToolChoice.Mode)
	assert.Equal(t, "x", doc.ToolChoice.Name)
	assert.Contains(t, doc.ToolNames(), "x")
}

func TestDocumentValueExposesCanonicalPaths(t *testing.T) {
	doc, err := promptspec.Parse([]byte(`{
		"model_class":"Chat","strict_mode":"Warn",
		"messages":[{"role":"User","content":"hi"}],
		"sampling":{"temperature":0.7}
	}`))
	require.NoError(t, err)

	v, err := doc.Value()
	require.NoError(t, err)

	obj, ok := v.Object()
	require.True(t, ok)
	sampling, ok := obj.Get("sampling")
	require.True(t, ok)
	samplingObj, _ := sampling.Object()
	temp, ok := samplingObj.Get("temperature")
	require.True(t, ok)
	n, _ := temp.Number()
	assert.Equal(t, 0.7, n)
}

func TestIsChatFamily(t *testing.T) {
	assert.True(t, promptspec.ModelClassChat.IsChatFamily())
	assert.True(t, promptspec.ModelClassVisionChat.IsChatFamily())
	assert.False(t, promptspec.ModelClassEmbedding.IsChatFamily())
	assert.False(t, promptspec.ModelClassCompletion.IsChatFamily())
}
