package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/chat-widget/internal/domain"
	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := newSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// Deterministic, strictly increasing clock.
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return s
}

func TestConversationLatestByEmail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.LatestConversationByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Nil(t, got, "missing conversation is not an error")

	first, err := s.CreateConversation(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)
	second, err := s.CreateConversation(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, "Bo", "bo@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	got, err = s.LatestConversationByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.Nil(t, got.Satisfaction)
}

func TestSetSatisfaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)

	require.NoError(t, s.SetSatisfaction(ctx, conv.ID, 4))
	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Satisfaction)
	assert.Equal(t, 4, *got.Satisfaction)

	err = s.SetSatisfaction(ctx, conv.ID, 9)
	assert.True(t, errdefs.IsInvalidArgument(err))

	err = s.SetSatisfaction(ctx, "missing", 3)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestMessagesRoundTripReconstructsExchanges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)

	pairs := []domain.Exchange{
		{Question: "hello", Answer: "hi, how can I help?"},
		{Question: "I need a site", Answer: "tell me more"},
		{Question: "a bakery", Answer: "on it"},
	}
	for _, p := range pairs {
		require.NoError(t, s.AppendMessage(ctx, &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: p.Question}))
		require.NoError(t, s.AppendMessage(ctx, &domain.Message{ConversationID: conv.ID, Role: domain.RoleBot, Content: p.Answer}))
	}
	require.NoError(t, s.AppendMessage(ctx, &domain.Message{ConversationID: conv.ID, Role: domain.RoleSystem, Content: "Chat Ended"}))

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 7)
	assert.Equal(t, domain.RoleSystem, msgs[6].Role)

	assert.Equal(t, pairs, domain.ReconstructExchanges(msgs))
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendMessage(context.Background(), &domain.Message{ConversationID: "c", Role: "admin", Content: "x"})
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestPrototypeLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := &domain.Prototype{ChatID: "chat-1", Email: "ana@example.com", PreviewURL: "https://v0.example/p/1"}
	newer := &domain.Prototype{ChatID: "chat-1", Email: "ana@example.com", PreviewURL: "https://v0.example/p/2"}
	require.NoError(t, s.CreatePrototype(ctx, older))
	require.NoError(t, s.CreatePrototype(ctx, newer))
	require.NotEmpty(t, older.ID)

	byChat, err := s.LatestPrototypeByChatID(ctx, "chat-1")
	require.NoError(t, err)
	require.NotNil(t, byChat)
	assert.Equal(t, newer.ID, byChat.ID)

	byPreview, err := s.LatestPrototypeByPreview(ctx, "ana@example.com", "https://v0.example/p/1")
	require.NoError(t, err)
	require.NotNil(t, byPreview)
	assert.Equal(t, older.ID, byPreview.ID)

	none, err := s.LatestPrototypeByChatID(ctx, "chat-unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	got, err := s.GetPrototype(ctx, newer.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://v0.example/p/2", got.PreviewURL)
}

func TestDeviceProfileLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetDeviceProfile(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpsertDeviceProfile(ctx, "dev-1", domain.Profile{Name: "Ana", Email: "ana@example.com"}))
	require.NoError(t, s.UpsertDeviceProfile(ctx, "dev-1", domain.Profile{Name: "Ana B", Email: "ana@example.com"}))

	got, err = s.GetDeviceProfile(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana B", got.Name)

	require.NoError(t, s.DeleteDeviceProfile(ctx, "dev-1"))
	got, err = s.GetDeviceProfile(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
