package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (*RedisConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisConversationRepository(rdb, ttl), mr
}

func TestConversationHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedisRepo(t, time.Hour)

	require.NoError(t, r.AddMessage(ctx, "c1", schema.UserMessage("outline")))
	require.NoError(t, r.AddMessages(ctx, "c1", []*schema.Message{
		schema.UserMessage("script please"),
		schema.AssistantMessage(`{"sections":[]}`, nil),
	}))

	h, err := r.LoadHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, h.Messages, 3)
	assert.Equal(t, schema.User, h.Messages[0].Role)
	assert.Equal(t, "script please", h.Messages[1].Content)
	assert.Equal(t, schema.Assistant, h.Messages[2].Role)

	n, err := r.GetMessageCount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, time.Hour, mr.TTL("conversation:c1:messages"))
}

func TestConversationEmptyHistory(t *testing.T) {
	r, _ := newRedisRepo(t, 0)
	h, err := r.LoadHistory(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, h.Messages)

	n, err := r.GetMessageCount(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConversationSummary(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedisRepo(t, time.Hour)

	s, err := r.LoadSummary(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, r.SaveSummary(ctx, "c1", "intro to cells"))
	s, err = r.LoadSummary(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "intro to cells", *s)

	require.NoError(t, r.AddMessage(ctx, "c1", schema.UserMessage("x")))
	require.NoError(t, r.ClearHistory(ctx, "c1"))
	s, err = r.LoadSummary(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, s)
	h, err := r.LoadHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, h.Messages)
}

func TestConversationRedisDown(t *testing.T) {
	r, mr := newRedisRepo(t, 0)
	mr.Close()
	_, err := r.LoadHistory(context.Background(), "c1")
	assert.Error(t, err)
}
