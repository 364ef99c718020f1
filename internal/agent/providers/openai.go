package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lessonforge/server/internal/agent/graph/parsers"
	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
)

// OpenAI groups the OpenAI adapters sharing one client.
type OpenAI struct {
	client openai.Client
	cfg    model.OpenAIConfig
}

func NewOpenAI(cfg model.OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...), cfg: cfg}
}

// Agent returns the structured agent (strict JSON schema response format).
func (o *OpenAI) Agent() *OpenAIAgent { return &OpenAIAgent{o: o} }

func (o *OpenAI) Images() *OpenAIImages { return &OpenAIImages{o: o} }

func (o *OpenAI) Speech() *OpenAISpeech { return &OpenAISpeech{o: o} }

// ===== Structured agent =====

type OpenAIAgent struct{ o *OpenAI }

func (a *OpenAIAgent) Interact(ctx context.Context, messages []*schema.Message, s *parsers.StructuredSchema) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    openai.ChatModel(a.o.cfg.AgentModel),
	}
	if s != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        s.Name,
					Description: openai.String(s.Description),
					Schema:      strictDefinition(s.Definition),
					Strict:      openai.Bool(s.Closed()),
				},
			},
		}
	}
	return a.o.chat(ctx, params)
}

func (a *OpenAIAgent) Complete(ctx context.Context, messages []*schema.Message) (*Response, error) {
	return a.o.chat(ctx, openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    openai.ChatModel(a.o.cfg.AgentModel),
	})
}

func (o *OpenAI) chat(ctx context.Context, params openai.ChatCompletionNewParams) (*Response, error) {
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errx.WrapProvider("openai", err)
	}
	out := &Response{
		Usage: &model.TokenUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
			Model:            completion.Model,
		},
	}
	if len(completion.Choices) > 0 {
		out.Content = completion.Choices[0].Message.Content
	}
	return out, nil
}

func toOpenAIMessages(in []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(in))
	for _, m := range in {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			out = append(out, openai.SystemMessage(m.Content))
		case schema.Assistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// strict mode rejects some validation keywords; the parser still enforces them.
var unsupportedStrictKeywords = []string{"minLength", "maxLength"}

func strictDefinition(def map[string]any) map[string]any {
	return stripKeywords(def).(map[string]any)
}

func stripKeywords(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isUnsupportedStrictKeyword(k) {
				continue
			}
			out[k] = stripKeywords(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripKeywords(val)
		}
		return out
	default:
		return v
	}
}

func isUnsupportedStrictKeyword(k string) bool {
	for _, u := range unsupportedStrictKeywords {
		if k == u {
			return true
		}
	}
	return false
}

// ===== Images =====

type OpenAIImages struct{ o *OpenAI }

func (g *OpenAIImages) Generate(ctx context.Context, prompt, size string) (*Asset, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("image prompt required")
	}
	params := openai.ImageGenerateParams{
		Model:  openai.ImageModel(g.o.cfg.ImageModel),
		Prompt: prompt,
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(strings.TrimSpace(size)),
	}
	// gpt-image models always answer with base64 and reject the parameter
	if !strings.HasPrefix(strings.ToLower(g.o.cfg.ImageModel), "gpt-image-") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := g.o.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, errx.WrapProvider("openai", err)
	}
	if resp == nil || len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].B64JSON) == "" {
		return nil, errx.EmptyProviderResponse("openai")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(resp.Data[0].B64JSON))
	if err != nil {
		return nil, errx.WrapProvider("openai", err)
	}
	return &Asset{Data: raw, MIMEType: imageMIMEType(resp.OutputFormat)}, nil
}

func imageMIMEType(f openai.ImagesResponseOutputFormat) string {
	switch f {
	case openai.ImagesResponseOutputFormatJPEG:
		return "image/jpeg"
	case openai.ImagesResponseOutputFormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// ===== Speech =====

type OpenAISpeech struct{ o *OpenAI }

func (g *OpenAISpeech) Generate(ctx context.Context, text, voice string) (*Asset, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("narration text required")
	}
	if voice == "" {
		voice = g.o.cfg.Voice
	}
	resp, err := g.o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(g.o.cfg.SpeechModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, errx.WrapProvider("openai", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errx.WrapProvider("openai", err)
	}
	if len(audio) == 0 {
		return nil, errx.EmptyProviderResponse("openai")
	}
	return &Asset{Data: audio, MIMEType: "audio/mpeg"}, nil
}
