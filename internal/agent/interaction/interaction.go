package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/lessonforge/server/internal/agent/graph/parsers"
	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/agent/providers"
	errx "github.com/lessonforge/server/internal/core/error"
	logx "github.com/lessonforge/server/pkg/logger"
)

// Protocol carries the provider-facing policy of a single call.
// Retries are the caller's business.
type Protocol struct {
	CallTimeout time.Duration
	// Label names the call in logs, e.g. "script" or "storyboard".
	Label string
}

type Option func(*Protocol)

func WithTimeout(d time.Duration) Option {
	return func(p *Protocol) { p.CallTimeout = d }
}

func WithLabel(label string) Option {
	return func(p *Protocol) { p.Label = label }
}

func newProtocol(opts []Option) Protocol {
	p := Protocol{Label: "interaction"}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// Interact runs one structured turn: it builds the message list from ictx,
// asks agent for a JSON document, and validates it against s.
// The returned History holds the user message and the raw assistant reply.
func Interact[TIn, TOut any](
	ctx context.Context,
	agent providers.StructuredAgent,
	ictx model.InteractionContext[TIn],
	s *parsers.StructuredSchema,
	systemPrompt string,
	opts ...Option,
) (*model.InteractionResult[TOut], error) {
	p := newProtocol(opts)

	userMsg, err := userMessage(ictx.Input())
	if err != nil {
		return nil, err
	}
	messages := BuildMessages(systemPrompt+schemaContract(s), ictx, userMsg)

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	start := time.Now()
	resp, err := agent.Interact(callCtx, messages, s)
	if err != nil {
		logx.Error().Err(err).Str("call", p.Label).Dur("elapsed", time.Since(start)).Msg("structured call failed")
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, errx.EmptyProviderResponse("")
	}

	content, err := parsers.Parse[TOut](resp.Content, s)
	if err != nil {
		return nil, err
	}

	cost := logUsage(p.Label, resp.Usage, time.Since(start))
	return &model.InteractionResult[TOut]{
		Content:    content,
		History:    []*schema.Message{userMsg, schema.AssistantMessage(resp.Content, nil)},
		TokenUsage: resp.Usage,
		CostUSD:    cost,
	}, nil
}

// Complete runs one free text turn against a TextCompleter.
func Complete(
	ctx context.Context,
	completer providers.TextCompleter,
	ictx model.InteractionContext[string],
	systemPrompt string,
	opts ...Option,
) (*model.InteractionResult[string], error) {
	p := newProtocol(opts)
	userMsg := schema.UserMessage(ictx.Input())
	messages := BuildMessages(systemPrompt, ictx, userMsg)

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	start := time.Now()
	resp, err := completer.Complete(callCtx, messages)
	if err != nil {
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, errx.EmptyProviderResponse("")
	}
	cost := logUsage(p.Label, resp.Usage, time.Since(start))
	return &model.InteractionResult[string]{
		Content:    strings.TrimSpace(resp.Content),
		History:    []*schema.Message{userMsg, schema.AssistantMessage(resp.Content, nil)},
		TokenUsage: resp.Usage,
		CostUSD:    cost,
	}, nil
}

// BuildMessages orders the prompt as system, optional summary, recent
// history, then the user message.
func BuildMessages[T any](system string, ictx model.InteractionContext[T], user *schema.Message) []*schema.Message {
	recent := ictx.RecentHistory()
	messages := make([]*schema.Message, 0, len(recent)+3)
	messages = append(messages, schema.SystemMessage(system))
	if summary, ok := ictx.Summary(); ok {
		messages = append(messages, schema.SystemMessage("Conversation summary: "+summary))
	}
	messages = append(messages, recent...)
	return append(messages, user)
}

func (p Protocol) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.CallTimeout > 0 {
		return context.WithTimeout(ctx, p.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func userMessage[T any](input T) (*schema.Message, error) {
	switch v := any(input).(type) {
	case string:
		return schema.UserMessage(v), nil
	case fmt.Stringer:
		return schema.UserMessage(v.String()), nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("render interaction input: %w", err)
	}
	return schema.UserMessage(string(b)), nil
}

func schemaContract(s *parsers.StructuredSchema) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf(
		"\n\nRespond with a single JSON document and nothing else. It must validate against the JSON Schema %q (version %s):\n%s",
		s.Name, s.Version, s.JSON(),
	)
}

func logUsage(label string, u *model.TokenUsage, elapsed time.Duration) float64 {
	if u == nil {
		logx.Debug().Str("call", label).Dur("elapsed", elapsed).Msg("LLM usage not reported")
		return 0
	}
	in, out, total := model.ComputeCost(u, model.ResolvePricing(u.Model))
	logx.Info().
		Str("call", label).
		Str("model", u.Model).
		Int("prompt_tokens", u.PromptTokens).
		Int("completion_tokens", u.CompletionTokens).
		Int("total_tokens", u.TotalTokens).
		Float64("input_cost_usd", in).
		Float64("output_cost_usd", out).
		Float64("total_cost_usd", total).
		Dur("elapsed", elapsed).
		Msg("LLM usage")
	return total
}
