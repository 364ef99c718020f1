package conversations

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/server/internal/agent/model"
)

type memoryRepo struct {
	messages map[string][]*schema.Message
	summary  map[string]string
	writes   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{messages: map[string][]*schema.Message{}, summary: map[string]string{}}
}

func (m *memoryRepo) AddMessage(ctx context.Context, id string, msg *schema.Message) error {
	return m.AddMessages(ctx, id, []*schema.Message{msg})
}

func (m *memoryRepo) AddMessages(_ context.Context, id string, msgs []*schema.Message) error {
	m.writes++
	m.messages[id] = append(m.messages[id], msgs...)
	return nil
}

func (m *memoryRepo) LoadHistory(_ context.Context, id string) (*model.ConversationHistory, error) {
	return &model.ConversationHistory{ConversationID: id, Messages: m.messages[id]}, nil
}

func (m *memoryRepo) ClearHistory(_ context.Context, id string) error {
	m.writes++
	delete(m.messages, id)
	return nil
}

func (m *memoryRepo) GetMessageCount(_ context.Context, id string) (int, error) {
	return len(m.messages[id]), nil
}

func (m *memoryRepo) LoadSummary(_ context.Context, id string) (*string, error) {
	s, ok := m.summary[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryRepo) SaveSummary(_ context.Context, id, s string) error {
	m.writes++
	m.summary[id] = s
	return nil
}

func seed(repo *memoryRepo, id string, n int) {
	for i := 0; i < n; i++ {
		repo.messages[id] = append(repo.messages[id], schema.UserMessage(fmt.Sprintf("m%d", i)))
	}
}

func TestBuildContextWindow(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "c1", 25)
	wm := NewWindowManager(repo, model.ConversationConfig{HistoryWindow: 10})

	ictx, err := BuildContext(context.Background(), wm, "c1", "next")
	require.NoError(t, err)
	recent := ictx.RecentHistory()
	require.Len(t, recent, 10)
	assert.Equal(t, "m15", recent[0].Content)
	assert.Equal(t, "m24", recent[9].Content)
	assert.Equal(t, "next", ictx.Input())
	_, ok := ictx.Summary()
	assert.False(t, ok)
	assert.Zero(t, repo.writes, "building a context never writes")

	// mutating the returned history does not leak into the snapshot
	recent[0].Content = "changed"
	assert.Equal(t, "m15", ictx.RecentHistory()[0].Content)
}

func TestBuildContextShortHistoryAndSummary(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "c1", 3)
	repo.summary["c1"] = "tone: friendly"
	wm := NewWindowManager(repo, model.ConversationConfig{})

	ictx, err := BuildContext(context.Background(), wm, "c1", 42)
	require.NoError(t, err)
	assert.Len(t, ictx.RecentHistory(), 3)
	s, ok := ictx.Summary()
	require.True(t, ok)
	assert.Equal(t, "tone: friendly", s)
}

func TestBuildContextWithoutConversation(t *testing.T) {
	wm := NewWindowManager(newMemoryRepo(), model.ConversationConfig{})
	ictx, err := BuildContext(context.Background(), wm, "", "x")
	require.NoError(t, err)
	assert.Empty(t, ictx.RecentHistory())
}

func TestAppendTurn(t *testing.T) {
	repo := newMemoryRepo()
	wm := NewWindowManager(repo, model.ConversationConfig{})
	turn := []*schema.Message{schema.UserMessage("q"), schema.AssistantMessage("a", nil)}

	require.NoError(t, wm.AppendTurn(context.Background(), "c1", turn))
	require.NoError(t, wm.AppendTurn(context.Background(), "", turn))
	assert.Len(t, repo.messages["c1"], 2)
	assert.Equal(t, 1, repo.writes)
}

func TestTrimTail(t *testing.T) {
	msgs := []*schema.Message{schema.UserMessage("a"), nil, schema.UserMessage("b"), schema.UserMessage("c")}
	got := trimTail(msgs, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Content)
	assert.Len(t, trimTail(msgs, 10), 3)
	assert.Equal(t, DefaultHistoryWindow, normalizeWindow(0))
}
