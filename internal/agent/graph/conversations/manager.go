package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/lessonforge/server/internal/agent/model"
)

const DefaultHistoryWindow = 10

// WindowManager turns stored conversation state into immutable interaction
// snapshots. Building a context never writes to the repository.
type WindowManager struct {
	conversationRepo model.ConversationRepository
	window           int
}

func NewWindowManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *WindowManager {
	return &WindowManager{
		conversationRepo: conversationRepo,
		window:           normalizeWindow(config.HistoryWindow),
	}
}

// BuildContext snapshots the last window messages and the rolling summary of
// conversationID around input. An empty conversationID yields a context
// without history.
func BuildContext[T any](ctx context.Context, wm *WindowManager, conversationID string, input T) (model.InteractionContext[T], error) {
	if wm == nil || wm.conversationRepo == nil || conversationID == "" {
		return model.NewInteractionContext(input, nil, nil), nil
	}
	history, err := wm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return model.InteractionContext[T]{}, err
	}
	summary, err := wm.conversationRepo.LoadSummary(ctx, conversationID)
	if err != nil {
		return model.InteractionContext[T]{}, err
	}
	return model.NewInteractionContext(input, summary, trimTail(history.Messages, wm.window)), nil
}

// AppendTurn persists the messages produced by one interaction.
func (wm *WindowManager) AppendTurn(ctx context.Context, conversationID string, turn []*schema.Message) error {
	if wm == nil || wm.conversationRepo == nil || conversationID == "" || len(turn) == 0 {
		return nil
	}
	return wm.conversationRepo.AddMessages(ctx, conversationID, turn)
}

// SaveSummary replaces the rolling summary of conversationID.
func (wm *WindowManager) SaveSummary(ctx context.Context, conversationID, summary string) error {
	if wm == nil || wm.conversationRepo == nil || conversationID == "" {
		return nil
	}
	return wm.conversationRepo.SaveSummary(ctx, conversationID, summary)
}

// ====================== Helper function ======================
func normalizeWindow(n int) int {
	if n <= 0 {
		return DefaultHistoryWindow
	}
	return n
}

// trimTail keeps the last max non-nil messages, in order, in a fresh slice.
func trimTail(messages []*schema.Message, max int) []*schema.Message {
	kept := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		if m != nil {
			kept = append(kept, m)
		}
	}
	if len(kept) <= max {
		return kept
	}
	source := kept[len(kept)-max:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
