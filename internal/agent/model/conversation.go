package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type ConversationRepository interface {
	// AddMessage adds a message to the conversation history for the given conversation
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error

	// AddMessages appends several messages atomically, in order
	AddMessages(ctx context.Context, conversationID string, messages []*schema.Message) error

	// LoadHistory retrieves the conversation history for a conversation
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	// ClearHistory removes all conversation history for a conversation
	ClearHistory(ctx context.Context, conversationID string) error

	// GetMessageCount returns the number of messages in the conversation
	GetMessageCount(ctx context.Context, conversationID string) (int, error)

	// LoadSummary returns the latest rolling summary, or nil when none was stored.
	LoadSummary(ctx context.Context, conversationID string) (*string, error)

	// SaveSummary replaces the rolling summary of a conversation.
	SaveSummary(ctx context.Context, conversationID string, summary string) error
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}

// InteractionContext is the read-only view handed to one provider call.
// Construct it with NewInteractionContext; accessors return copies.
type InteractionContext[T any] struct {
	input   T
	summary *string
	recent  []*schema.Message
}

func NewInteractionContext[T any](input T, summary *string, recent []*schema.Message) InteractionContext[T] {
	var s *string
	if summary != nil {
		v := *summary
		s = &v
	}
	return InteractionContext[T]{input: input, summary: s, recent: CloneMessages(recent)}
}

func (c InteractionContext[T]) Input() T { return c.input }

// Summary returns the rolling summary and whether one is present.
func (c InteractionContext[T]) Summary() (string, bool) {
	if c.summary == nil {
		return "", false
	}
	return *c.summary, true
}

func (c InteractionContext[T]) RecentHistory() []*schema.Message {
	return CloneMessages(c.recent)
}

// WithInput returns a snapshot sharing this context's history but carrying a new input.
func WithInput[T, U any](c InteractionContext[T], input U) InteractionContext[U] {
	return NewInteractionContext(input, c.summary, c.recent)
}

// TokenUsage is the provider-reported usage of a single call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// InteractionResult is the validated outcome of one conversational turn.
// History holds only the messages produced by this turn.
type InteractionResult[T any] struct {
	Content    T
	History    []*schema.Message
	TokenUsage *TokenUsage
	CostUSD    float64
}

// CloneMessages copies the slice and the message values it points to.
func CloneMessages(in []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(in))
	for _, m := range in {
		if m == nil {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return out
}
