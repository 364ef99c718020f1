package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	"github.com/getkin/kin-openapi/openapi3"
	"google.golang.org/genai"

	"github.com/lessonforge/server/internal/agent/graph/parsers"
	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
	logx "github.com/lessonforge/server/pkg/logger"
)

// SchemaOptions turns a structured schema into provider-specific call
// options requesting a JSON response that follows it.
type SchemaOptions func(s *parsers.StructuredSchema) ([]einomodel.Option, error)

// ChatModelAgent adapts any eino chat model to the StructuredAgent and
// TextCompleter ports. The schema contract always travels in the system
// prompt; with SchemaOptions set it is also enforced by the provider.
type ChatModelAgent struct {
	provider      string
	modelName     string
	cm            einomodel.BaseChatModel
	schemaOptions SchemaOptions
}

type ChatModelAgentOption func(*ChatModelAgent)

func WithSchemaOptions(fn SchemaOptions) ChatModelAgentOption {
	return func(a *ChatModelAgent) { a.schemaOptions = fn }
}

func NewChatModelAgent(provider, modelName string, cm einomodel.BaseChatModel, opts ...ChatModelAgentOption) *ChatModelAgent {
	a := &ChatModelAgent{provider: provider, modelName: modelName, cm: cm}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *ChatModelAgent) Interact(ctx context.Context, messages []*schema.Message, s *parsers.StructuredSchema) (*Response, error) {
	if s == nil || a.schemaOptions == nil {
		return a.generate(ctx, messages)
	}
	opts, err := a.schemaOptions(s)
	if err != nil {
		return nil, fmt.Errorf("build %s response schema %s: %w", a.provider, s.Name, err)
	}
	return a.generate(ctx, messages, opts...)
}

func (a *ChatModelAgent) Complete(ctx context.Context, messages []*schema.Message) (*Response, error) {
	return a.generate(ctx, messages)
}

func (a *ChatModelAgent) generate(ctx context.Context, messages []*schema.Message, opts ...einomodel.Option) (*Response, error) {
	msg, err := a.cm.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, errx.WrapProvider(a.provider, err)
	}
	if msg == nil {
		return &Response{}, nil
	}
	return &Response{Content: msg.Content, Usage: usageFromMessage(msg, a.modelName)}, nil
}

func usageFromMessage(msg *schema.Message, modelName string) *model.TokenUsage {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	u := msg.ResponseMeta.Usage
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return &model.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      total,
		Model:            modelName,
	}
}

// GeminiModels holds the chat models and the shared client of the Gemini backend.
type GeminiModels struct {
	Client *genai.Client
	Agent  *ChatModelAgent
	Text   *ChatModelAgent
	Image  *ImagenGenerator
}

// NewGeminiModels creates the agent and text chat models plus the Imagen
// generator over a single genai client.
func NewGeminiModels(ctx context.Context, cfg model.GeminiConfig) (*GeminiModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens

	agentModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.AgentModel,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	textModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.TextModel,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating text model")
		return nil, fmt.Errorf("error creating text model: %w", err)
	}

	return &GeminiModels{
		Client: client,
		Agent:  NewChatModelAgent("gemini", cfg.AgentModel, agentModel, WithSchemaOptions(GeminiSchemaOptions)),
		Text:   NewChatModelAgent("gemini", cfg.TextModel, textModel),
		Image:  NewImagenGenerator(client, cfg.ImageModel),
	}, nil
}

// GeminiSchemaOptions requests a JSON response constrained by s. The gemini
// model only switches to the JSON mime type when an OpenAPI schema is present,
// and prefers the JSON Schema form when both are given.
func GeminiSchemaOptions(s *parsers.StructuredSchema) ([]einomodel.Option, error) {
	raw := []byte(s.JSON())

	js := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, js); err != nil {
		return nil, fmt.Errorf("decode json schema: %w", err)
	}
	oas := &openapi3.Schema{}
	if err := json.Unmarshal(raw, oas); err != nil {
		logx.Debug().Err(err).Str("schema", s.Name).Msg("Schema has no OpenAPI form, using a plain object")
		oas = openapi3.NewObjectSchema()
	}
	return []einomodel.Option{
		gemini.WithResponseSchema(oas),
		gemini.WithResponseJSONSchema(js),
	}, nil
}
