package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/server/internal/agent/graph/parsers"
	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
)

type fakeChatModel struct {
	reply *schema.Message
	err   error
	seen  []*schema.Message
	opts  []einomodel.Option
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.seen = input
	f.opts = opts
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatModelAgentUsage(t *testing.T) {
	cm := &fakeChatModel{reply: &schema.Message{
		Role:    schema.Assistant,
		Content: `{"ok":true}`,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
		},
	}}
	agent := NewChatModelAgent("gemini", "gemini-2.5-flash", cm)

	resp, err := agent.Interact(context.Background(), []*schema.Message{schema.UserMessage("hi")}, parsers.ScriptSchema)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "gemini-2.5-flash", resp.Usage.Model)
	assert.Len(t, cm.seen, 1)
}

func TestChatModelAgentRequestsStructuredOutput(t *testing.T) {
	cm := &fakeChatModel{reply: schema.AssistantMessage(`{"scenes":[]}`, nil)}
	var built []string
	agent := NewChatModelAgent("gemini", "gemini-2.5-flash", cm, WithSchemaOptions(func(s *parsers.StructuredSchema) ([]einomodel.Option, error) {
		built = append(built, s.Name)
		return GeminiSchemaOptions(s)
	}))

	_, err := agent.Interact(context.Background(), []*schema.Message{schema.UserMessage("script")}, parsers.StoryboardSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{parsers.StoryboardSchema.Name}, built)
	assert.Len(t, cm.opts, 2)

	// free text turns stay unconstrained
	_, err = agent.Complete(context.Background(), []*schema.Message{schema.UserMessage("summarize")})
	require.NoError(t, err)
	assert.Empty(t, cm.opts)
	assert.Len(t, built, 1)
}

func TestGeminiSchemaOptions(t *testing.T) {
	for _, s := range []*parsers.StructuredSchema{parsers.ScriptSchema, parsers.StoryboardSchema} {
		opts, err := GeminiSchemaOptions(s)
		require.NoError(t, err, s.Name)
		assert.Len(t, opts, 2, s.Name)
	}

	_, err := GeminiSchemaOptions(parsers.NewSchema("broken", "v1", "", map[string]any{"type": 42}))
	assert.Error(t, err)
}

func TestChatModelAgentError(t *testing.T) {
	agent := NewChatModelAgent("gemini", "m", &fakeChatModel{err: errors.New("quota")})
	_, err := agent.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, errx.KindProvider, errx.KindOf(err))
}

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI(model.OpenAIConfig{
		APIKey:      "test",
		BaseURL:     srv.URL + "/v1/",
		AgentModel:  "gpt-4o-mini",
		ImageModel:  "dall-e-3",
		SpeechModel: "tts-1",
		Voice:       "alloy",
	})
}

func TestOpenAIAgentStrictSchema(t *testing.T) {
	var body map[string]any
	o := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini-2024-07-18",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"sections\":[]}"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":8,"total_tokens":20}}`)
	})

	resp, err := o.Agent().Interact(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("outline"),
	}, parsers.StoryboardSchema)
	require.NoError(t, err)
	assert.Equal(t, `{"sections":[]}`, resp.Content)
	assert.Equal(t, 20, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Usage.Model)

	rf := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, true, js["strict"])
	assert.NotContains(t, mustJSON(t, js["schema"]), "minLength")
	assert.Len(t, body["messages"], 2)
}

func TestOpenAIImagesAndSpeech(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	o := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch r.URL.Path {
		case "/v1/images/generations":
			assert.Equal(t, "dall-e-3", req["model"])
			assert.Equal(t, "b64_json", req["response_format"])
			assert.Equal(t, "1024x1024", req["size"])
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"created": 1,
				"data":    []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
			})
		case "/v1/audio/speech":
			assert.Equal(t, "alloy", req["voice"])
			assert.Equal(t, "tts-1", req["model"])
			assert.Equal(t, "mp3", req["response_format"])
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3audio"))
		default:
			http.NotFound(w, r)
		}
	})

	img, err := o.Images().Generate(context.Background(), "a leaf", "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, png, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)

	audio, err := o.Speech().Generate(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio.Data)
	assert.Equal(t, ".mp3", ExtensionFor(audio.MIMEType))

	_, err = o.Speech().Generate(context.Background(), "  ", "")
	assert.Error(t, err)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
